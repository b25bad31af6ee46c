package engine

import (
	"time"

	"atlas/internal/policy"
	"atlas/internal/walkforward"

	"github.com/shopspring/decimal"
)

const defaultADVWindow = 20

type BacktestConfig struct {
	policy        *policy.Policy
	spec          walkforward.Spec
	cost          CostModel
	riskFree      decimal.Decimal
	windowWorkers int
	advWindow     int
	// maxGap is the widest calendar gap tolerated between consecutive bars, 0 disables it.
	maxGap time.Duration
}

func NewBacktestConfig(p *policy.Policy, spec walkforward.Spec, cost CostModel, riskFree decimal.Decimal, windowWorkers int, maxGap time.Duration) *BacktestConfig {
	if windowWorkers < 1 {
		windowWorkers = 1
	}
	return &BacktestConfig{
		policy:        p,
		spec:          spec,
		cost:          cost,
		riskFree:      riskFree,
		windowWorkers: windowWorkers,
		advWindow:     defaultADVWindow,
		maxGap:        maxGap,
	}
}

func (c *BacktestConfig) Policy() *policy.Policy { return c.policy }
func (c *BacktestConfig) Spec() walkforward.Spec { return c.spec }

type BatchConfig struct {
	workers      int
	showProgress bool
}

func NewBatchConfig(workers int, showProgress bool) *BatchConfig {
	if workers < 1 {
		workers = 1
	}
	return &BatchConfig{workers: workers, showProgress: showProgress}
}

type ReportingConfig struct {
	printReport bool
	reportName  string
	filePath    string
}

func NewReportingConfig(printReport bool, reportName string, filePath string) *ReportingConfig {
	return &ReportingConfig{
		printReport: printReport,
		reportName:  reportName,
		filePath:    filePath,
	}
}
