// Copyright (C) 2008-2019 by Nicolas Piganeau and the TS2 TEAM
// (See AUTHORS file)
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program; if not, write to the
// Free Software Foundation, Inc.,
// 59 Temple Place - Suite 330, Boston, MA  02111-1307, USA.

package simulation

import (
	"strings"
	"time"
)

// Time wraps time.Time so the simulation clock can be marshalled as a plain
// HH:MM:SS string on the wire, independent of wall-clock time zones.
type Time struct {
	time.Time
}

// Now returns the current Time in UTC.
func Now() Time {
	return Time{time.Now().UTC()}
}

// IsZero reports whether t holds the zero instant.
func (t Time) IsZero() bool {
	return t.Time.IsZero()
}

// Add returns t advanced by d.
func (t Time) Add(d time.Duration) Time {
	return Time{t.Time.Add(d)}
}

// Sub returns the duration between t and other.
func (t Time) Sub(other Time) time.Duration {
	return t.Time.Sub(other.Time)
}

// Before reports whether t is strictly before other.
func (t Time) Before(other Time) bool {
	return t.Time.Before(other.Time)
}

// MarshalJSON renders the time as a quoted "HH:MM:SS" string.
func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Time.Format("15:04:05") + `"`), nil
}

// UnmarshalJSON parses a quoted "HH:MM:SS" string, anchored to January 1 of
// year 0 UTC (the date time.Parse fills in when the layout has none).
func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse("15:04:05", s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}
