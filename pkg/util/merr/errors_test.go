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

package merr

import (
	"context"
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrSessionNotFound("alice")
	wrapped := errors.Wrap(err, "failed to forward")
	s.ErrorIs(wrapped, ErrSessionNotFound)
	s.Equal(Code(ErrSessionNotFound), Code(wrapped))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errUnexpected))
	s.Equal(errUnexpected.errCode, Code(errors.New("plain")))
	s.Equal(int32(0), Code(nil))

	sameCodeErr := newHubError("new error", ErrSessionNotFound.errCode, false)
	s.True(sameCodeErr.Is(ErrSessionNotFound))
	s.False(sameCodeErr.Is(ErrSessionBusy))
}

func (s *ErrSuite) TestWireText() {
	s.Equal("Invalid JSON", WrapErrInvalidRequest().Error())
	s.Equal("Request too large", Message(WrapErrRequestTooLarge(1024)))
	s.Equal("Unknown action: dance", WrapErrUnknownAction("dance").Error())
	s.Equal("Missing required parameter: session_name", WrapErrParameterMissing("session_name").Error())
	s.Equal("Invalid parameter: caller_name must not be empty", WrapErrParameterEmpty("caller_name").Error())

	s.Equal("Session 'alice' already exists", WrapErrSessionAlreadyExists("alice").Error())
	s.Equal("Session 'alice' not found", WrapErrSessionNotFound("alice").Error())
	s.Equal("Session 'alice' is busy", WrapErrSessionBusy("alice", "bob").Error())
	s.Equal("No caller connected", WrapErrSessionNoCaller("alice").Error())
	s.Equal("Caller connection lost", WrapErrSessionCallerLost("alice", "bob").Error())
	s.Equal("Failed to send to listener: queue full",
		WrapErrDeliveryFailed("Failed to send to listener", errors.New("queue full")).Error())
	s.Equal("Failed to send response: unknown", WrapErrDeliveryFailed("Failed to send response", nil).Error())
}

func (s *ErrSuite) TestDetailKeepsContext() {
	err := WrapErrSessionBusy("alice", "bob")
	var merr hubError
	s.True(errors.As(err, &merr))
	s.Equal("Session 'alice' is busy[caller=bob]", merr.Detail())
	s.Equal("Session 'alice' is busy", merr.Error())
}

func (s *ErrSuite) TestMessage() {
	s.Equal("", Message(nil))
	s.Equal("Session 'alice' not found", Message(errors.Wrap(WrapErrSessionNotFound("alice"), "refocus")))
	s.Equal("boom", Message(errors.New("boom")))
}

func (s *ErrSuite) TestWrap() {
	// Service 相关错误。
	s.ErrorIs(WrapErrServiceNotReady("initializing"), ErrServiceNotReady)
	s.ErrorIs(WrapErrServiceInternal("never throw out"), ErrServiceInternal)
	s.ErrorIs(WrapErrTooManyRequests(100, "too many requests"), ErrServiceTooManyRequests)

	// 协议相关错误。
	s.ErrorIs(WrapErrInvalidRequest(), ErrInvalidRequest)
	s.ErrorIs(WrapErrUnknownAction("dance"), ErrUnknownAction)
	s.ErrorIs(WrapErrRequestTooLarge(16), ErrParameterTooLarge)

	// Session 相关错误。
	s.ErrorIs(WrapErrSessionAlreadyExists("alice"), ErrSessionAlreadyExists)
	s.ErrorIs(WrapErrSessionNotFound("alice"), ErrSessionNotFound)
	s.ErrorIs(WrapErrSessionBusy("alice", "bob"), ErrSessionBusy)
	s.ErrorIs(WrapErrSessionNoCaller("alice"), ErrSessionNoCaller)
	s.ErrorIs(WrapErrSessionCallerLost("alice", "bob"), ErrSessionCallerLost)
	s.ErrorIs(WrapErrDeliveryFailed("Failed to send response", os.ErrClosed), ErrDeliveryFailed)

	// IO 相关错误。
	s.ErrorIs(WrapErrIoFailed("conn-1", os.ErrClosed), ErrIoFailed)
	s.ErrorIs(WrapErrIoUnexpectEOF("conn-1", os.ErrClosed), ErrIoUnexpectEOF)
	s.NoError(WrapErrIoFailed("conn-1", nil))

	// 参数相关错误。
	s.ErrorIs(WrapErrParameterMissing("target"), ErrParameterMissing)
	s.ErrorIs(WrapErrParameterEmpty("target"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterInvalidMsg("port %d out of range", 70000), ErrParameterInvalid)

	s.ErrorIs(WrapErrOperationNotSupported("federation"), ErrOperationNotSupported)
}

func (s *ErrSuite) TestErrorType() {
	s.Equal(InputError, GetErrorType(WrapErrSessionNotFound("alice")))
	s.Equal(InputError, GetErrorType(WrapErrParameterMissing("target")))
	s.Equal(SystemError, GetErrorType(WrapErrDeliveryFailed("Failed to send response", nil)))
	s.Equal(SystemError, GetErrorType(errors.New("plain")))

	s.Equal(InputError, GetErrorType(WrapErrAsInputError(WrapErrServiceInternal("bad input"))))
	s.Equal("input_error", InputError.String())
}

func (s *ErrSuite) TestRetryable() {
	s.True(IsRetryableErr(ErrSessionBusy))
	s.False(IsRetryableErr(ErrSessionNotFound))
	s.False(IsRetryableErr(errors.New("plain")))

	s.True(IsCanceledOrTimeout(errors.Wrap(context.Canceled, "stop")))
	s.False(IsCanceledOrTimeout(ErrIoFailed))
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.True(errors.Is(err, errFirst))
	s.True(errors.Is(err, errSecond))
	s.False(errors.Is(err, errThird))

	s.Equal("first: second", err.Error())
}

func (s *ErrSuite) TestCombineWithNil() {
	err := errors.New("non-nil")

	err = Combine(nil, err)
	s.NotNil(err)
}

func (s *ErrSuite) TestCombineOnlyNil() {
	err := Combine(nil, nil)
	s.Nil(err)
}

func (s *ErrSuite) TestCombineCode() {
	err := Combine(WrapErrSessionBusy("alice", "bob"), WrapErrSessionNotFound("carol"))
	s.Equal(Code(ErrSessionNotFound), Code(err))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}
