// Package coppa 根据不完整的出生信息判断用户的年龄分级。
package coppa

import "time"

// Status 年龄分级
type Status string

const (
	StatusBlocked         Status = "blocked"
	StatusRequiresConsent Status = "requires_consent"
	StatusFullAccess      Status = "full_access"
	StatusUnknown         Status = "unknown"
)

const (
	// EstimatedAgeAtGraduation 只有毕业年份时，按高中毕业年龄估算
	EstimatedAgeAtGraduation = 18

	minimumAge = 14
	adultAge   = 18
)

// Classify 按当前时间分级
func Classify(birthDate *time.Time, graduationYear *int) Status {
	return ClassifyAt(time.Now(), birthDate, graduationYear)
}

// ClassifyAt 以 UTC 日历日期分级。出生日期优先，其次毕业年份，都没有则为 unknown。
func ClassifyAt(now time.Time, birthDate *time.Time, graduationYear *int) Status {
	return ClassifyIn(now, time.UTC, birthDate, graduationYear)
}

// ClassifyIn 以 loc 时区的当天日期分级，loc 为 nil 时使用 UTC
func ClassifyIn(now time.Time, loc *time.Location, birthDate *time.Time, graduationYear *int) Status {
	age, ok := EstimateAgeIn(now, loc, birthDate, graduationYear)
	if !ok {
		return StatusUnknown
	}
	switch {
	case age < minimumAge:
		return StatusBlocked
	case age < adultAge:
		return StatusRequiresConsent
	default:
		return StatusFullAccess
	}
}

// EstimateAge 返回整岁年龄以及是否能够估算，当天日期按 UTC 计算
func EstimateAge(now time.Time, birthDate *time.Time, graduationYear *int) (int, bool) {
	return EstimateAgeIn(now, time.UTC, birthDate, graduationYear)
}

// EstimateAgeIn 同 EstimateAge，当天日期按 loc 计算
func EstimateAgeIn(now time.Time, loc *time.Location, birthDate *time.Time, graduationYear *int) (int, bool) {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc)
	if birthDate != nil && !birthDate.IsZero() {
		return ageOn(today, *birthDate), true
	}
	if graduationYear != nil && *graduationYear > 0 {
		return today.Year() - *graduationYear + EstimatedAgeAtGraduation, true
	}
	return 0, false
}

// ageOn 出生日期是日历日期，按其自身时区取年月日，不做时区换算。
// 2月29日出生的人在平年3月1日满岁。
func ageOn(today, birth time.Time) int {
	by, bm, bd := birth.Date()
	ty, tm, td := today.Date()
	age := ty - by
	if tm < bm || (tm == bm && td < bd) {
		age--
	}
	return age
}
