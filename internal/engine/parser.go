package engine

import (
	"encoding/json"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/harvester/internal/domain"
)

// ParseSetting парсит JSON-документ Setting и валидирует его.
func ParseSetting(data []byte) (*domain.Setting, error) {
	var s domain.Setting
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse setting: %w", err)
	}
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate выполняет полную валидацию Setting.
//
// Проверяет:
// - Наличие шагов
// - Совпадение ключа таблицы и имени шага (пустое имя заполняется ключом)
// - concurrency_limit > 0
// - Заполненность генераторов и job
// - Корректность cron-выражения schedule
func Validate(s *domain.Setting) error {
	if s == nil || len(s.Steps) == 0 {
		return ErrEmptySteps
	}
	if s.Env == nil {
		s.Env = make(map[string]string)
	}
	if s.Header == nil {
		s.Header = make(map[string]string)
	}

	for key, step := range s.Steps {
		if step.Name == "" {
			step.Name = key
			s.Steps[key] = step
		}
		if err := ValidateStep(key, &step); err != nil {
			return err
		}
	}
	return nil
}

// cronParser — 5 полей, как у scheduler.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateStep валидирует один шаг, записанный под ключом key.
func ValidateStep(key string, step *domain.Step) error {
	if key == "" || step.Name == "" {
		return NewValidationError("", "name", "step has empty name", ErrEmptyStepName)
	}
	if step.Name != key {
		return NewValidationError(key, "name",
			fmt.Sprintf("step name %q does not match key %q", step.Name, key), ErrStepNameMismatch)
	}
	if step.ConcurrencyLimit < 1 {
		return NewValidationError(key, "concurrency_limit",
			fmt.Sprintf("concurrency_limit must be positive, got %d", step.ConcurrencyLimit), ErrInvalidConcurrency)
	}
	if step.RateLimit < 0 {
		return NewValidationError(key, "rate_limit", "rate_limit must not be negative", ErrInvalidConcurrency)
	}

	for i, g := range step.TaskIters {
		if err := validateGenerator(g); err != nil {
			return NewValidationError(key, fmt.Sprintf("task_iters[%d]", i), err.Error(), ErrInvalidGenerator)
		}
	}

	if err := validateJob(step.Job); err != nil {
		return NewValidationError(key, "job", err.Error(), ErrInvalidJob)
	}

	if step.Schedule != "" {
		if _, err := cronParser.Parse(step.Schedule); err != nil {
			return NewValidationError(key, "schedule",
				fmt.Sprintf("invalid cron expression %q: %v", step.Schedule, err), ErrInvalidSchedule)
		}
	}
	return nil
}

func validateGenerator(g domain.GeneratorSpec) error {
	switch g.Kind {
	case domain.GeneratorVec:
		if g.Vec == nil || g.Vec.Name == "" {
			return fmt.Errorf("Vec requires name")
		}
	case domain.GeneratorRange:
		if g.Range == nil || g.Range.Name == "" {
			return fmt.Errorf("Range requires name")
		}
	case domain.GeneratorPattern:
		if g.Pattern == nil || g.Pattern.Name == "" || g.Pattern.GlobPattern == "" {
			return fmt.Errorf("Pattern requires name and glob_pattern")
		}
	case domain.GeneratorRangePattern:
		if g.RangePattern == nil || g.RangePattern.Name == "" || g.RangePattern.GlobPattern == "" {
			return fmt.Errorf("RangePattern requires name and glob_pattern")
		}
	case domain.GeneratorGlobJSONPattern:
		if g.GlobJSONPattern == nil || g.GlobJSONPattern.GlobPattern == "" || len(g.GlobJSONPattern.EnvPattern) == 0 {
			return fmt.Errorf("GlobJsonPattern requires glob_pattern and env_pattern")
		}
	case domain.GeneratorGlobJSONRangePattern:
		if g.GlobJSONRangePattern == nil || g.GlobJSONRangePattern.Name == "" || g.GlobJSONRangePattern.FilePattern == "" {
			return fmt.Errorf("GlobJsonRangePattern requires name and file_pattern")
		}
	default:
		return fmt.Errorf("unknown kind %q", g.Kind)
	}
	return nil
}

func validateJob(j domain.JobSpec) error {
	switch j.Kind {
	case domain.JobHTTP:
		if j.HTTP == nil || j.HTTP.URL == "" {
			return fmt.Errorf("HttpJob requires url")
		}
	case domain.JobHTML:
		if j.HTML == nil || j.HTML.OutputTemplateFile == "" {
			return fmt.Errorf("HtmlJob requires output_template_file")
		}
	case domain.JobCSV:
		if j.CSV == nil || len(j.CSV.Keys) == 0 {
			return fmt.Errorf("CsvJob requires keys")
		}
	case domain.JobShell:
		if j.Shell == nil || j.Shell.Shell == "" {
			return fmt.Errorf("ShellJob requires shell")
		}
	default:
		return fmt.Errorf("unknown kind %q", j.Kind)
	}
	return nil
}
