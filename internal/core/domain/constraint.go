package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Activation failure codes recorded when a role is dropped during session
// creation, or returned as a hard failure from an explicit activation request.
const (
	ActivationFailedTimeOfDay = "ACTV_FAILED_TIMEOFDAY"
	ActivationFailedDay       = "ACTV_FAILED_DAY"
	ActivationFailedDate      = "ACTV_FAILED_DATE"
	ActivationFailedLock      = "ACTV_FAILED_LOCK"
	ActivationFailedDSD       = "ACTV_FAILED_DSD"
)

// Constraint carries the temporal validity rules attached to a user, a role,
// or a user-role assignment. All fields are optional; an empty field means the
// corresponding check is skipped. Time-of-day bounds use HHMM, dates use
// YYYYMMDD, and the day mask lists permitted weekdays with 1 = Sunday through
// 7 = Saturday (e.g. "23456" for weekdays only).
type Constraint struct {
	BeginTime     string
	EndTime       string
	DayMask       string
	BeginDate     string
	EndDate       string
	BeginLockDate string
	EndLockDate   string
	// Timeout is the session inactivity limit in minutes; zero defers to the
	// engine default.
	Timeout int
}

// IsZero reports whether no temporal rule is set.
func (c *Constraint) IsZero() bool {
	if c == nil {
		return true
	}
	return c.BeginTime == "" && c.EndTime == "" && c.DayMask == "" &&
		c.BeginDate == "" && c.EndDate == "" &&
		c.BeginLockDate == "" && c.EndLockDate == "" && c.Timeout == 0
}

// Validate evaluates the constraint against the supplied reference time and
// returns an activation failure code, or an empty string when activation is
// permitted. The reference time is always provided by the caller so the
// evaluation stays deterministic.
func (c *Constraint) Validate(at time.Time) string {
	if c.IsZero() {
		return ""
	}

	if code := c.validateTimeOfDay(at); code != "" {
		return code
	}
	if code := c.validateDay(at); code != "" {
		return code
	}
	if code := c.validateDate(at); code != "" {
		return code
	}
	return c.validateLockDate(at)
}

func (c *Constraint) validateTimeOfDay(at time.Time) string {
	if c.BeginTime == "" || c.EndTime == "" || c.BeginTime == c.EndTime {
		return ""
	}

	begin, err := strconv.Atoi(c.BeginTime)
	if err != nil {
		return ActivationFailedTimeOfDay
	}
	end, err := strconv.Atoi(c.EndTime)
	if err != nil {
		return ActivationFailedTimeOfDay
	}

	cur := at.Hour()*100 + at.Minute()
	if cur < begin || cur > end {
		return ActivationFailedTimeOfDay
	}
	return ""
}

func (c *Constraint) validateDay(at time.Time) string {
	if c.DayMask == "" || c.DayMask == "all" {
		return ""
	}

	// time.Weekday numbers Sunday as 0; the mask numbers it as 1.
	day := strconv.Itoa(int(at.Weekday()) + 1)
	for i := 0; i < len(c.DayMask); i++ {
		if string(c.DayMask[i]) == day {
			return ""
		}
	}
	return ActivationFailedDay
}

func (c *Constraint) validateDate(at time.Time) string {
	cur := dateStamp(at)

	if c.BeginDate != "" && cur < c.BeginDate {
		return ActivationFailedDate
	}
	if c.EndDate != "" && cur > c.EndDate {
		return ActivationFailedDate
	}
	return ""
}

func (c *Constraint) validateLockDate(at time.Time) string {
	if c.BeginLockDate == "" || c.EndLockDate == "" {
		return ""
	}

	cur := dateStamp(at)
	if cur >= c.BeginLockDate && cur <= c.EndLockDate {
		return ActivationFailedLock
	}
	return ""
}

func dateStamp(at time.Time) string {
	return fmt.Sprintf("%04d%02d%02d", at.Year(), int(at.Month()), at.Day())
}
