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
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Service related
	ErrServiceNotReady        = newHubError("service not ready", 1, true)
	ErrServiceUnavailable     = newHubError("service unavailable", 2, true)
	ErrServiceTooManyRequests = newHubError("too many concurrent requests, queue is full", 4, true)
	ErrServiceInternal        = newHubError("service internal error", 5, false)

	// Request (wire protocol) related
	ErrInvalidRequest = newHubError("invalid request", 100, false, WithErrorType(InputError))
	ErrUnknownAction  = newHubError("unknown action", 101, false, WithErrorType(InputError))

	// Session related
	ErrSessionAlreadyExists = newHubError("session already exists", 200, false, WithErrorType(InputError))
	ErrSessionNotFound      = newHubError("session not found", 201, false, WithErrorType(InputError))
	ErrSessionBusy          = newHubError("session is busy", 202, true, WithErrorType(InputError))
	ErrSessionNoCaller      = newHubError("no caller connected", 203, false, WithErrorType(InputError))
	ErrSessionCallerLost    = newHubError("caller connection lost", 204, false)

	// Delivery related
	ErrDeliveryFailed = newHubError("delivery failed", 300, false)

	// IO related
	ErrIoFailed      = newHubError("IO failed", 1001, false)
	ErrIoUnexpectEOF = newHubError("unexpected EOF", 1002, true)

	// Parameter related
	ErrParameterInvalid  = newHubError("invalid parameter", 1100, false, WithErrorType(InputError))
	ErrParameterMissing  = newHubError("missing parameter", 1101, false, WithErrorType(InputError))
	ErrParameterTooLarge = newHubError("parameter too large", 1102, false, WithErrorType(InputError))

	// General
	ErrOperationNotSupported = newHubError("unsupported operation", 3000, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to hubError
	errUnexpected = newHubError("unexpected error", (1<<16)-1, false)
)

type errorOption func(*hubError)

func WithDetail(detail string) errorOption {
	return func(err *hubError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *hubError) {
		err.errType = etype
	}
}

type hubError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType
}

func newHubError(msg string, code int32, retriable bool, options ...errorOption) hubError {
	err := hubError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e hubError) code() int32 {
	return e.errCode
}

func (e hubError) Error() string {
	return e.msg
}

func (e hubError) Detail() string {
	return e.detail
}

func (e hubError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(hubError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
