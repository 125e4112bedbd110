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
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case hubError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

// Message 返回可直接回写给对端的错误文本。
// 对于 hubError，返回其自身的 msg（不含外层 Wrap 的上下文）；其他错误返回 Error()。
func Message(err error) string {
	if err == nil {
		return ""
	}
	if cause, ok := errors.Cause(err).(hubError); ok {
		return cause.msg
	}
	return err.Error()
}

func IsRetryableErr(err error) bool {
	if err, ok := err.(hubError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

func WrapErrAsInputError(err error) error {
	if merr, ok := err.(hubError); ok {
		WithErrorType(InputError)(&merr)
		return merr
	}
	return err
}

func GetErrorType(err error) ErrorType {
	if merr, ok := errors.Cause(err).(hubError); ok {
		return merr.errType
	}

	return SystemError
}

// Service 相关错误封装。
func WrapErrServiceNotReady(state string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrServiceNotReady, state)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrServiceInternal(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrServiceInternal, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrTooManyRequests(limit int32, msg ...string) error {
	err := wrapFields(ErrServiceTooManyRequests,
		value("limit", limit),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// 以下封装直接生成对端可见的错误文本，错误码保持不变，errors.Is 仍然可用。

// WrapErrInvalidRequest 请求行无法解析为 JSON 对象。
func WrapErrInvalidRequest() error {
	return withMessage(ErrInvalidRequest, "Invalid JSON")
}

// WrapErrRequestTooLarge 请求行超过帧长度上限。
func WrapErrRequestTooLarge(limit int) error {
	err := withMessage(ErrParameterTooLarge, "Request too large")
	return withDetail(err, fmt.Sprintf("Request too large[limit=%d]", limit))
}

func WrapErrUnknownAction(action string) error {
	return withMessage(ErrUnknownAction, "Unknown action: "+action)
}

func WrapErrParameterMissing(field string) error {
	return withMessage(ErrParameterMissing, "Missing required parameter: "+field)
}

func WrapErrParameterEmpty(field string) error {
	return withMessage(ErrParameterInvalid, fmt.Sprintf("Invalid parameter: %s must not be empty", field))
}

func WrapErrParameterInvalidMsg(format string, args ...any) error {
	return withMessage(ErrParameterInvalid, "Invalid parameter: "+fmt.Sprintf(format, args...))
}

// Session 相关错误封装。
func WrapErrSessionAlreadyExists(name string) error {
	return withMessage(ErrSessionAlreadyExists, fmt.Sprintf("Session '%s' already exists", name))
}

func WrapErrSessionNotFound(name string) error {
	return withMessage(ErrSessionNotFound, fmt.Sprintf("Session '%s' not found", name))
}

func WrapErrSessionBusy(name string, caller string) error {
	err := withMessage(ErrSessionBusy, fmt.Sprintf("Session '%s' is busy", name))
	return withDetail(err, fmt.Sprintf("Session '%s' is busy[caller=%s]", name, caller))
}

func WrapErrSessionNoCaller(name string) error {
	err := withMessage(ErrSessionNoCaller, "No caller connected")
	return withDetail(err, fmt.Sprintf("No caller connected[session=%s]", name))
}

func WrapErrSessionCallerLost(name string, caller string) error {
	err := withMessage(ErrSessionCallerLost, "Caller connection lost")
	return withDetail(err, fmt.Sprintf("Caller connection lost[session=%s][caller=%s]", name, caller))
}

// Delivery 相关错误封装，prefix 为对端可见的前缀，例如 "Failed to send to listener"。
func WrapErrDeliveryFailed(prefix string, cause error) error {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	return withMessage(ErrDeliveryFailed, prefix+": "+reason)
}

// IO 相关错误封装。
func WrapErrIoFailed(key string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrIoFailed, err.Error(), value("key", key))
}

func WrapErrIoUnexpectEOF(key string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrIoUnexpectEOF, err.Error(), value("key", key))
}

func WrapErrOperationNotSupported(operation string) error {
	return wrapFields(ErrOperationNotSupported, value("operation", operation))
}

func withMessage(err hubError, msg string) error {
	err.msg = msg
	err.detail = msg
	return err
}

func withDetail(err error, detail string) error {
	if merr, ok := err.(hubError); ok {
		merr.detail = detail
		return merr
	}
	return err
}

func wrapFields(err hubError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err hubError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}
