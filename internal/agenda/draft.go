package agenda

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"schedcal/internal/datekey"
	"schedcal/internal/model"
)

// Draft is the editable form of an event as submitted by a create or edit
// workflow.
type Draft struct {
	Title       string `json:"title" yaml:"title" validate:"required"`
	Description string `json:"description" yaml:"description"`
	Date        string `json:"date" yaml:"date" validate:"required,datekey"`
	StartTime   string `json:"start_time" yaml:"start_time" validate:"required,hhmm"`
	EndTime     string `json:"end_time" yaml:"end_time" validate:"required,hhmm"`
	Category    string `json:"category" yaml:"category"`
	Color       string `json:"color" yaml:"color"`
}

// DraftOf returns the editable form of ev.
func DraftOf(ev model.Event) Draft {
	return Draft{
		Title:       ev.Title,
		Description: ev.Description,
		Date:        string(ev.Date),
		StartTime:   ev.StartTime,
		EndTime:     ev.EndTime,
		Category:    ev.Category,
		Color:       ev.Color,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("datekey", func(fl validator.FieldLevel) bool {
		return datekey.Valid(fl.Field().String())
	})
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return model.ValidClock(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validate checks required fields and formats, then the time ordering.
// The first problem found is reported as a *model.ValidationError.
func (w *Workflow) validate(d Draft) error {
	if strings.TrimSpace(d.Title) == "" {
		d.Title = ""
	}
	if err := w.validator.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &model.ValidationError{
				Field:  fe.Field(),
				Value:  fmtValue(fe.Value()),
				Reason: reasonFor(fe.Tag()),
			}
		}
		return err
	}
	if _, err := model.ParseInterval(d.StartTime, d.EndTime); err != nil {
		return err
	}
	return nil
}

func reasonFor(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "datekey":
		return "date must be YYYY-MM-DD"
	case "hhmm":
		return "time must be HH:MM"
	default:
		return "failed " + tag
	}
}

func fmtValue(v any) string {
	s, _ := v.(string)
	return s
}
