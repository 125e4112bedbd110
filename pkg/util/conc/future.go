// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conc

// Future 表示一个异步任务的结果，任务结束后 ch 被关闭。
type Future[T any] struct {
	ch    chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{
		ch: make(chan struct{}),
	}
}

// Await 阻塞直到任务结束，返回结果与错误。
func (future *Future[T]) Await() (T, error) {
	<-future.ch
	return future.value, future.err
}

// Err 阻塞直到任务结束，仅返回错误。
func (future *Future[T]) Err() error {
	<-future.ch
	return future.err
}

// Done 判断任务是否已结束，不会阻塞。
func (future *Future[T]) Done() bool {
	select {
	case <-future.ch:
		return true
	default:
		return false
	}
}

// Inner 返回任务结束时被关闭的 channel，便于与 select 组合使用。
func (future *Future[T]) Inner() <-chan struct{} {
	return future.ch
}

// Go 在新的协程中执行 fn，并返回对应的 Future。
func Go[T any](fn func() (T, error)) *Future[T] {
	future := newFuture[T]()
	go func() {
		defer close(future.ch)
		future.value, future.err = fn()
	}()
	return future
}

// AwaitAll 等待所有 Future 结束，返回遇到的第一个错误。
func AwaitAll[T any](futures ...*Future[T]) error {
	var firstErr error
	for _, future := range futures {
		if err := future.Err(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
