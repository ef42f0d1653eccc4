package perception

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/strideworks/coachguard/internal/agent"
	"github.com/strideworks/coachguard/internal/models"
)

// metricsFile is the on-disk YAML shape for one subject's metrics. Ingest
// jobs drop one file per subject into the metrics directory.
type metricsFile struct {
	AICoached  bool `yaml:"ai_coached"`
	DailyLoads []struct {
		Date string  `yaml:"date"`
		Load float64 `yaml:"load"`
	} `yaml:"daily_loads"`
	ActiveInjuries []struct {
		BodyPart  string `yaml:"body_part"`
		PainLevel int    `yaml:"pain_level"`
	} `yaml:"active_injuries"`
	ReadinessScore   *int `yaml:"readiness_score"`
	MissedWorkouts7d int  `yaml:"missed_workouts_7d"`
}

// FileSource reads subject metrics from per-subject YAML files in a
// directory. It doubles as the subject directory: the same file records
// whether the subject runs with an AI coach.
type FileSource struct {
	dir string
}

// NewFileSource creates a file-backed metrics source rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Metrics loads and parses the subject's metrics file.
func (f *FileSource) Metrics(ctx context.Context, subjectID string) (SubjectMetrics, error) {
	parsed, err := f.load(subjectID)
	if err != nil {
		return SubjectMetrics{}, err
	}

	metrics := SubjectMetrics{
		ReadinessScore:   parsed.ReadinessScore,
		MissedWorkouts7d: parsed.MissedWorkouts7d,
	}
	for _, d := range parsed.DailyLoads {
		date, err := time.Parse("2006-01-02", d.Date)
		if err != nil {
			slog.Warn("FileSource.Metrics: skipping daily load with bad date", "subject", subjectID, "date", d.Date)
			continue
		}
		metrics.DailyLoads = append(metrics.DailyLoads, DailyLoad{Date: date, Load: d.Load})
	}
	for _, inj := range parsed.ActiveInjuries {
		metrics.ActiveInjuries = append(metrics.ActiveInjuries, models.ActiveInjury{
			BodyPart:  inj.BodyPart,
			PainLevel: inj.PainLevel,
		})
	}
	slog.Debug("FileSource.Metrics: loaded subject metrics", "subject", subjectID, "dailyLoads", len(metrics.DailyLoads), "injuries", len(metrics.ActiveInjuries))
	return metrics, nil
}

// IsAICoached reports whether the subject's metrics file marks them as
// AI-coached. It implements agent.SubjectDirectory.
func (f *FileSource) IsAICoached(ctx context.Context, subjectID string) (bool, error) {
	parsed, err := f.load(subjectID)
	if err != nil {
		return false, err
	}
	return parsed.AICoached, nil
}

func (f *FileSource) load(subjectID string) (metricsFile, error) {
	path := filepath.Join(f.dir, subjectID+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return metricsFile{}, fmt.Errorf("failed to read metrics file for %s: %w", subjectID, err)
	}
	var parsed metricsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return metricsFile{}, fmt.Errorf("failed to parse metrics file for %s: %w", subjectID, err)
	}
	return parsed, nil
}

var _ MetricsSource = (*FileSource)(nil)
var _ agent.SubjectDirectory = (*FileSource)(nil)
