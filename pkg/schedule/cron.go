package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Fields names the positions of a standard cron expression.
var Fields = []string{"minute", "hour", "day-of-month", "month", "day-of-week"}

var robfig = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// parser accepts 7 as Sunday in the day-of-week field, as standard cron does.
var parser cron.ScheduleParser = sundayParser{}

type sundayParser struct{}

func (sundayParser) Parse(spec string) (cron.Schedule, error) {
	f := strings.Fields(spec)
	if len(f) == len(Fields) {
		f[4] = normalizeDow(f[4])
		spec = strings.Join(f, " ")
	}
	return robfig.Parse(spec)
}

// normalizeDow rewrites 7 to 0 in a day-of-week field: "7" becomes "0" and
// a range ending in 7 becomes the range to 6 plus 0. Stepped items are left
// alone.
func normalizeDow(field string) string {
	items := strings.Split(field, ",")
	for i, item := range items {
		if strings.Contains(item, "/") {
			continue
		}
		if item == "7" {
			items[i] = "0"
			continue
		}
		lo, hi, ok := strings.Cut(item, "-")
		if !ok || hi != "7" {
			continue
		}
		if lo == "0" || lo == "7" {
			items[i] = "0-6"
			continue
		}
		items[i] = lo + "-6,0"
	}
	return strings.Join(items, ",")
}

// FieldError reports the first invalid field of an expression.
type FieldError struct {
	Field    string
	Position int
	Value    string
	Err      error
}

func (e *FieldError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("invalid cron expression: %v", e.Err)
	}
	return fmt.Sprintf("invalid %s field %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Validate checks expr field by field. Empty expressions are valid.
func Validate(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}
	if strings.HasPrefix(expr, "@") {
		if _, err := parser.Parse(expr); err != nil {
			return &FieldError{Position: -1, Value: expr, Err: err}
		}
		return nil
	}
	fields := strings.Fields(expr)
	if len(fields) != len(Fields) {
		return &FieldError{
			Position: -1,
			Value:    expr,
			Err:      fmt.Errorf("expected %d fields, got %d", len(Fields), len(fields)),
		}
	}
	// Probe each field alone so the report names the first bad one.
	for i, f := range fields {
		probe := []string{"*", "*", "*", "*", "*"}
		probe[i] = f
		if _, err := parser.Parse(strings.Join(probe, " ")); err != nil {
			return &FieldError{Field: Fields[i], Position: i, Value: f, Err: err}
		}
	}
	if _, err := parser.Parse(expr); err != nil {
		return &FieldError{Position: -1, Value: expr, Err: err}
	}
	return nil
}

// Next returns the first fire time strictly after after, in after's location.
// An empty expression never fires and yields the zero time.
func Next(expr string, after time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, nil
	}
	if err := Validate(expr); err != nil {
		return time.Time{}, err
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

// ErrNever is returned by NextN for schedules that never fire.
var ErrNever = errors.New("schedule never fires")

// NextN returns the next n fire times after after.
func NextN(expr string, after time.Time, n int) ([]time.Time, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, ErrNever
	}
	out := make([]time.Time, 0, n)
	t := after
	for i := 0; i < n; i++ {
		next, err := Next(expr, t)
		if err != nil {
			return nil, err
		}
		out = append(out, next)
		t = next
	}
	return out, nil
}

var weekdays = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Describe renders common expression shapes in words and falls back to the
// expression itself.
func Describe(expr string) string {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "never (manual trigger only)"
	}
	f := strings.Fields(expr)
	if len(f) != len(Fields) || Validate(expr) != nil {
		return expr
	}
	minute, hour, dom, month, dow := f[0], f[1], f[2], f[3], normalizeDow(f[4])
	if month != "*" {
		return expr
	}

	if hour == "*" && dom == "*" && dow == "*" {
		switch {
		case minute == "*":
			return "every minute"
		case strings.HasPrefix(minute, "*/"):
			return "every " + strings.TrimPrefix(minute, "*/") + " minutes"
		case isNumber(minute):
			return fmt.Sprintf("hourly at :%02d", atoi(minute))
		}
		return expr
	}
	if !isNumber(minute) || !isNumber(hour) {
		return expr
	}
	at := fmt.Sprintf("%02d:%02d", atoi(hour), atoi(minute))

	switch {
	case dom == "*" && dow == "*":
		return "daily at " + at
	case dom == "*" && dow == "1-5":
		return "weekdays at " + at
	case dom == "*" && isNumber(dow) && atoi(dow) < len(weekdays):
		return "every " + weekdays[atoi(dow)] + " at " + at
	case isNumber(dom) && dow == "*":
		return fmt.Sprintf("monthly on day %d at %s", atoi(dom), at)
	}
	return expr
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Preset is a named canonical schedule offered by editors.
type Preset struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Expr  string `json:"expr"`
}

// Presets lists the schedules offered to users, in display order.
var Presets = []Preset{
	{ID: "every-minute", Label: "Every minute", Expr: "* * * * *"},
	{ID: "every-5-minutes", Label: "Every 5 minutes", Expr: "*/5 * * * *"},
	{ID: "every-15-minutes", Label: "Every 15 minutes", Expr: "*/15 * * * *"},
	{ID: "every-hour", Label: "Every hour", Expr: "0 * * * *"},
	{ID: "daily-9am", Label: "Daily at 9am", Expr: "0 9 * * *"},
	{ID: "daily-midnight", Label: "Daily at midnight", Expr: "0 0 * * *"},
	{ID: "weekdays-9am", Label: "Weekdays at 9am", Expr: "0 9 * * 1-5"},
	{ID: "weekly-monday-9am", Label: "Every Monday at 9am", Expr: "0 9 * * 1"},
	{ID: "every-friday-5pm", Label: "Every Friday at 5pm", Expr: "0 17 * * 5"},
	{ID: "monthly-1st", Label: "Monthly on the 1st at 9am", Expr: "0 9 1 * *"},
}

// PresetByID looks up a preset.
func PresetByID(id string) (Preset, bool) {
	for _, p := range Presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}
