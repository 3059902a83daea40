package service

import (
	"Crosspost/internal/pkg/consts"
	"time"
)

// RepeatRule 重复发布规则
type RepeatRule struct {
	Mode string
	// DayOfWeek 每周单日，0=周日
	DayOfWeek *int
	// DaysOfWeek 每周多日集合，优先于 DayOfWeek
	DaysOfWeek []int
	// DayOfMonth 每月目标日，短月钳制到月末
	DayOfMonth *int
}

// ValidateRepeatRule 校验规则字段取值
func ValidateRepeatRule(rule RepeatRule) error {
	switch rule.Mode {
	case consts.RepeatNone:
		return nil
	case consts.RepeatDaily:
		return nil
	case consts.RepeatWeekly:
		// 单日和日集合至少要给一个
		if rule.DayOfWeek == nil && len(rule.DaysOfWeek) == 0 {
			return ErrRepeatRuleInvalid
		}
		if rule.DayOfWeek != nil && (*rule.DayOfWeek < 0 || *rule.DayOfWeek > 6) {
			return ErrRepeatRuleInvalid
		}
		for _, day := range rule.DaysOfWeek {
			if day < 0 || day > 6 {
				return ErrRepeatRuleInvalid
			}
		}
		return nil
	case consts.RepeatMonthly:
		if rule.DayOfMonth == nil || *rule.DayOfMonth < 1 || *rule.DayOfMonth > 31 {
			return ErrRepeatRuleInvalid
		}
		return nil
	default:
		return ErrRepeatRuleInvalid
	}
}

// NextOccurrence 计算严格晚于 reference 的下一次发布时间。
// 挂钟时间在 loc 时区内保持不变，跨夏令时由 time.Date 归一化。
func NextOccurrence(rule RepeatRule, reference time.Time, loc *time.Location) (time.Time, error) {
	if err := ValidateRepeatRule(rule); err != nil {
		return time.Time{}, err
	}

	ref := reference.In(loc)
	year, month, day := ref.Date()
	hour, minute, sec := ref.Clock()

	switch rule.Mode {
	case consts.RepeatDaily:
		return time.Date(year, month, day+1, hour, minute, sec, ref.Nanosecond(), loc), nil

	case consts.RepeatWeekly:
		targets := rule.DaysOfWeek
		if len(targets) == 0 {
			targets = []int{*rule.DayOfWeek}
		}

		minDelta := 7
		for _, target := range targets {
			delta := (target - int(ref.Weekday()) + 7) % 7
			if delta == 0 {
				delta = 7
			}
			if delta < minDelta {
				minDelta = delta
			}
		}
		return time.Date(year, month, day+minDelta, hour, minute, sec, ref.Nanosecond(), loc), nil

	case consts.RepeatMonthly:
		target := *rule.DayOfMonth

		// 先试参考时间所在的月份，目标日已过才滚到下个月
		next := monthlyOccurrence(year, month, target, hour, minute, sec, ref.Nanosecond(), loc)
		for !next.After(ref) {
			year, month, _ = next.Date()
			next = monthlyOccurrence(year, month+1, target, hour, minute, sec, ref.Nanosecond(), loc)
		}
		return next, nil

	default:
		return time.Time{}, ErrRepeatRuleInvalid
	}
}

// monthlyOccurrence 在指定月份内取目标日，超出月末则钳制到月末
func monthlyOccurrence(year int, month time.Month, targetDay, hour, minute, sec, nsec int, loc *time.Location) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	day := targetDay
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, hour, minute, sec, nsec, loc)
}
