// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package builtin provides the tools shipped with vxagent.
package builtin

import (
	"context"
	"time"
	_ "time/tzdata"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool"
)

const dateLayout = "2006-01-02"

// now is replaced in tests.
var now = time.Now

type datetimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA time zone name such as Europe/Madrid; defaults to UTC"`
}

// DateTime is the current time in one time zone.
type DateTime struct {
	Timezone string `json:"timezone"`
	DateTime string `json:"datetime"`
	Date     string `json:"date"`
	Weekday  string `json:"weekday"`
}

// CurrentDateTime returns the get_current_datetime tool.
func CurrentDateTime() tool.Tool {
	return tool.NewFunctionTool("get_current_datetime",
		"Returns the current date and time in the given IANA time zone.",
		func(_ context.Context, in datetimeArgs) (DateTime, error) {
			name := in.Timezone
			if name == "" {
				name = "UTC"
			}
			loc, err := time.LoadLocation(name)
			if err != nil {
				return DateTime{}, kerrors.New(kerrors.CodeInvalidInput, "unknown time zone "+name, nil)
			}
			t := now().In(loc)
			return DateTime{
				Timezone: name,
				DateTime: t.Format(time.RFC3339),
				Date:     t.Format(dateLayout),
				Weekday:  t.Weekday().String(),
			}, nil
		})
}

type daysBetweenArgs struct {
	Start string `json:"start" jsonschema:"description=Start date as YYYY-MM-DD"`
	End   string `json:"end" jsonschema:"description=End date as YYYY-MM-DD"`
}

// DaysBetween returns the days_between tool. The result is negative when
// end is before start.
func DaysBetween() tool.Tool {
	return tool.NewFunctionTool("days_between",
		"Counts the days between two ISO dates (YYYY-MM-DD).",
		func(_ context.Context, in daysBetweenArgs) (map[string]int, error) {
			start, err := time.Parse(dateLayout, in.Start)
			if err != nil {
				return nil, kerrors.New(kerrors.CodeInvalidInput, "invalid start date "+in.Start, nil)
			}
			end, err := time.Parse(dateLayout, in.End)
			if err != nil {
				return nil, kerrors.New(kerrors.CodeInvalidInput, "invalid end date "+in.End, nil)
			}
			return map[string]int{"days": int(end.Sub(start).Hours() / 24)}, nil
		})
}
