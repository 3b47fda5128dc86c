package stats

import (
	"sync/atomic"
	"time"
)

// Stats накапливает внутренние счетчики движка. Все операции атомарны,
// счетчики инкрементируются из воркер-горутин без общей блокировки.
type Stats struct {
	startedAt time.Time

	readingsIn        atomic.Uint64
	invalidReadings   atomic.Uint64
	lateDrops         atomic.Uint64
	summariesEmitted  atomic.Uint64
	verdicts          atomic.Uint64
	anomalies         atomic.Uint64
	degradedVerdicts  atomic.Uint64
	schemaMismatches  atomic.Uint64
	alertsPublished   atomic.Uint64
	alertsSuppressed  atomic.Uint64
	publishFailures   atomic.Uint64
	cacheHits         atomic.Uint64
	cacheMisses       atomic.Uint64
	cacheBuilds       atomic.Uint64
	cacheRefreshFails atomic.Uint64
	cacheEvictions    atomic.Uint64
}

// New создает пустой набор счетчиков
func New() *Stats {
	return &Stats{startedAt: time.Now()}
}

func (s *Stats) ReadingIn()        { s.readingsIn.Add(1) }
func (s *Stats) InvalidReading()   { s.invalidReadings.Add(1) }
func (s *Stats) LateDrop()         { s.lateDrops.Add(1) }
func (s *Stats) SummaryEmitted()   { s.summariesEmitted.Add(1) }
func (s *Stats) Verdict()          { s.verdicts.Add(1) }
func (s *Stats) Anomaly()          { s.anomalies.Add(1) }
func (s *Stats) DegradedVerdict()  { s.degradedVerdicts.Add(1) }
func (s *Stats) SchemaMismatch()   { s.schemaMismatches.Add(1) }
func (s *Stats) AlertPublished()   { s.alertsPublished.Add(1) }
func (s *Stats) AlertSuppressed()  { s.alertsSuppressed.Add(1) }
func (s *Stats) PublishFailure()   { s.publishFailures.Add(1) }
func (s *Stats) CacheHit()         { s.cacheHits.Add(1) }
func (s *Stats) CacheMiss()        { s.cacheMisses.Add(1) }
func (s *Stats) CacheBuild()       { s.cacheBuilds.Add(1) }
func (s *Stats) CacheRefreshFail() { s.cacheRefreshFails.Add(1) }
func (s *Stats) CacheEviction()    { s.cacheEvictions.Add(1) }

// Snapshot — мгновенный срез счетчиков для /stats и CloudWatch
type Snapshot struct {
	UptimeSeconds     float64 `json:"uptime_seconds"`
	ReadingsIn        uint64  `json:"readings_in"`
	InvalidReadings   uint64  `json:"invalid_readings"`
	LateDrops         uint64  `json:"late_drops"`
	SummariesEmitted  uint64  `json:"summaries_emitted"`
	Verdicts          uint64  `json:"verdicts"`
	Anomalies         uint64  `json:"anomalies"`
	DegradedVerdicts  uint64  `json:"degraded_verdicts"`
	SchemaMismatches  uint64  `json:"schema_mismatches"`
	AlertsPublished   uint64  `json:"alerts_published"`
	AlertsSuppressed  uint64  `json:"alerts_suppressed"`
	PublishFailures   uint64  `json:"publish_failures"`
	CacheHits         uint64  `json:"cache_hits"`
	CacheMisses       uint64  `json:"cache_misses"`
	CacheBuilds       uint64  `json:"cache_builds"`
	CacheRefreshFails uint64  `json:"cache_refresh_fails"`
	CacheEvictions    uint64  `json:"cache_evictions"`
}

// Snapshot возвращает согласованный на уровне отдельных счетчиков срез
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		UptimeSeconds:     time.Since(s.startedAt).Seconds(),
		ReadingsIn:        s.readingsIn.Load(),
		InvalidReadings:   s.invalidReadings.Load(),
		LateDrops:         s.lateDrops.Load(),
		SummariesEmitted:  s.summariesEmitted.Load(),
		Verdicts:          s.verdicts.Load(),
		Anomalies:         s.anomalies.Load(),
		DegradedVerdicts:  s.degradedVerdicts.Load(),
		SchemaMismatches:  s.schemaMismatches.Load(),
		AlertsPublished:   s.alertsPublished.Load(),
		AlertsSuppressed:  s.alertsSuppressed.Load(),
		PublishFailures:   s.publishFailures.Load(),
		CacheHits:         s.cacheHits.Load(),
		CacheMisses:       s.cacheMisses.Load(),
		CacheBuilds:       s.cacheBuilds.Load(),
		CacheRefreshFails: s.cacheRefreshFails.Load(),
		CacheEvictions:    s.cacheEvictions.Load(),
	}
}
