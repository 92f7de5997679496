package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/indo-cafe/api/internal/domain"
	"github.com/indo-cafe/api/internal/repositories"
)

type stubHealthRepo struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepo) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

type stubCounterRepo struct {
	nextFn func(context.Context, string, int64) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 0, errors.New("not implemented")
}

func (s *stubCounterRepo) Configure(context.Context, string, repositories.CounterConfig) error {
	return nil
}

func TestHealthReportEnrichesWithBuildInfo(t *testing.T) {
	started := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	repo := &stubHealthRepo{
		report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK},
			},
		},
	}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		Build: BuildInfo{
			Version:     "1.4.0",
			CommitSHA:   "abc1234",
			Environment: "production",
			StartedAt:   started,
		},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok status, got %q", report.Status)
	}
	if report.Version != "1.4.0" || report.CommitSHA != "abc1234" || report.Environment != "production" {
		t.Fatalf("unexpected build metadata %+v", report)
	}
	if report.Uptime != 2*time.Hour {
		t.Fatalf("expected 2h uptime, got %v", report.Uptime)
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected GeneratedAt %v, got %v", now, report.GeneratedAt)
	}
}

func TestHealthReportDerivesStatusFromChecks(t *testing.T) {
	cases := []struct {
		name   string
		checks map[string]domain.SystemHealthCheck
		want   string
	}{
		{"empty is ok", nil, domain.HealthStatusOK},
		{"degraded check", map[string]domain.SystemHealthCheck{
			"pubsub": {Status: domain.HealthStatusDegraded},
		}, domain.HealthStatusDegraded},
		{"error wins", map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusError},
			"pubsub":    {Status: domain.HealthStatusDegraded},
		}, domain.HealthStatusError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubHealthRepo{report: domain.SystemHealthReport{Checks: tc.checks}}
			svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
			if err != nil {
				t.Fatalf("NewSystemService: %v", err)
			}
			report, err := svc.HealthReport(context.Background())
			if err != nil {
				t.Fatalf("HealthReport: %v", err)
			}
			if report.Status != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, report.Status)
			}
		})
	}
}

func TestHealthReportPropagatesCollectError(t *testing.T) {
	repo := &stubHealthRepo{err: errors.New("collect failed")}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNextCounterValue(t *testing.T) {
	var gotID string
	var gotStep int64
	counters := &stubCounterRepo{
		nextFn: func(_ context.Context, counterID string, step int64) (int64, error) {
			gotID, gotStep = counterID, step
			return 42, nil
		},
	}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepo{},
		Counters:         counters,
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	value, err := svc.NextCounterValue(context.Background(), CounterCommand{CounterID: "daily-ticket", Step: 5})
	if err != nil {
		t.Fatalf("NextCounterValue: %v", err)
	}
	if value != 42 || gotID != "daily-ticket" || gotStep != 5 {
		t.Fatalf("unexpected call id=%q step=%d value=%d", gotID, gotStep, value)
	}

	// Zero step defaults to one.
	if _, err := svc.NextCounterValue(context.Background(), CounterCommand{CounterID: "daily-ticket"}); err != nil {
		t.Fatalf("NextCounterValue default step: %v", err)
	}
	if gotStep != 1 {
		t.Fatalf("expected default step 1, got %d", gotStep)
	}

	if _, err := svc.NextCounterValue(context.Background(), CounterCommand{}); !errors.Is(err, ErrSystemInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
