// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package source

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind 单源错误类别
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindTransport   ErrorKind = "transport"
	KindCircuitOpen ErrorKind = "circuit_open"
	KindRateLimited ErrorKind = "rate_limited"
	KindInvalid     ErrorKind = "invalid"
)

// Error 单源调用失败；不会越过 fan-out 边界向调用方抛出
type Error struct {
	Kind   ErrorKind `json:"kind"`
	Source string    `json:"source"`
	Cause  string    `json:"cause"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("source %s: %s: %s", e.Source, e.Kind, e.Cause)
}

// Retryable timeout 与 transport 可在预算内重试
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindTransport
}

// NewError 构造单源错误
func NewError(kind ErrorKind, sourceName string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Source: sourceName, Cause: msg}
}

// Classify 将 adapter 返回的任意错误归类为 *Error
func Classify(sourceName string, err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		out := *se
		if out.Source == "" {
			out.Source = sourceName
		}
		return &out
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewError(KindTimeout, sourceName, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NewError(KindTimeout, sourceName, err)
	}
	return NewError(KindTransport, sourceName, err)
}
