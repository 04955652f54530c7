package rprofile

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/impala-query/fragment-runtime/pkg/services"
)

// BucketingCounter increments the bucket whose index matches the current
// value of a source counter, clamped to the bucket vector's bounds.
type BucketingCounter struct {
	source  *Counter
	buckets []*Counter
}

// AddBucketingCounters registers source as the driver for a vector of
// num buckets (named prefix+"_0" .. prefix+"_{num-1}"). The buckets are
// updated only once the result is passed to a PeriodicCounterUpdater's
// RegisterBucketingCounter, each time that updater samples source.
func (p *Profile) AddBucketingCounters(prefix string, source *Counter, num int) *BucketingCounter {
	bc := &BucketingCounter{source: source}
	for i := 0; i < num; i++ {
		bc.buckets = append(bc.buckets, p.AddCounter(bucketName(prefix, i), UNIT, ""))
	}
	p.bucketMu.Lock()
	p.bucketings = append(p.bucketings, bc)
	p.bucketMu.Unlock()
	return bc
}

func bucketName(prefix string, i int) string {
	return prefix + "_" + strconv.Itoa(i)
}

func (bc *BucketingCounter) sample() {
	idx := int(bc.source.Value())
	if idx < 0 {
		idx = 0
	}
	if idx >= len(bc.buckets) {
		idx = len(bc.buckets) - 1
	}
	if idx < 0 {
		return
	}
	bc.buckets[idx].Add(1)
}

type rateRegistrant struct {
	dst     *Counter
	src     *Counter
	lastVal int64
	lastAt  time.Time
}

type samplingRegistrant struct {
	dst    *Counter
	src    *Counter
	sum    int64
	count  int64
}

type bucketingRegistrant struct {
	bc *BucketingCounter
}

// PeriodicCounterUpdater is the single sampler thread servicing three
// populations: rate counters (differentiate a source over wall time),
// sampling counters (running average of samples since creation), and
// bucketing counters. It is an explicit, constructed object rather than a
// process-wide singleton; counters are sampled only by the updater they
// were registered with.
//
// A caller that stops using a registered source counter is responsible
// for deregistering it (Deregister*); forgetting to do so is a leak, not a
// correctness bug.
type PeriodicCounterUpdater struct {
	*services.BasicService

	period time.Duration

	mu         sync.Mutex
	rates      map[*Counter]*rateRegistrant
	samplings  map[*Counter]*samplingRegistrant
	bucketings map[*Counter]*bucketingRegistrant
}

// NewPeriodicCounterUpdater constructs an updater sampling at period.
func NewPeriodicCounterUpdater(period time.Duration) *PeriodicCounterUpdater {
	u := &PeriodicCounterUpdater{
		period:     period,
		rates:      map[*Counter]*rateRegistrant{},
		samplings:  map[*Counter]*samplingRegistrant{},
		bucketings: map[*Counter]*bucketingRegistrant{},
	}
	u.BasicService = services.NewBasicService(u.run, nil)
	return u
}

func (u *PeriodicCounterUpdater) run(ctx context.Context) error {
	t := time.NewTicker(u.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			u.sampleOnce(now)
		}
	}
}

func (u *PeriodicCounterUpdater) sampleOnce(now time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, r := range u.rates {
		elapsed := now.Sub(r.lastAt).Seconds()
		cur := r.src.Value()
		if elapsed > 0 {
			rate := float64(cur-r.lastVal) / elapsed
			r.dst.Set(int64(rate))
		}
		r.lastVal = cur
		r.lastAt = now
	}
	for _, s := range u.samplings {
		s.sum += s.src.Value()
		s.count++
		s.dst.Set(s.sum / s.count)
	}
	for _, b := range u.bucketings {
		b.bc.sample()
	}
}

// RegisterRateCounter registers dst as the rate of change of src, sampled
// every period.
func (u *PeriodicCounterUpdater) RegisterRateCounter(dst, src *Counter) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rates[dst] = &rateRegistrant{dst: dst, src: src, lastAt: time.Now()}
}

// DeregisterRateCounter stops sampling dst.
func (u *PeriodicCounterUpdater) DeregisterRateCounter(dst *Counter) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.rates, dst)
}

// RegisterSamplingCounter registers dst as the running average of src.
func (u *PeriodicCounterUpdater) RegisterSamplingCounter(dst, src *Counter) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.samplings[dst] = &samplingRegistrant{dst: dst, src: src}
}

// DeregisterSamplingCounter stops sampling dst.
func (u *PeriodicCounterUpdater) DeregisterSamplingCounter(dst *Counter) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.samplings, dst)
}

// RegisterBucketingCounter registers bc's buckets to be incremented every
// period based on bc's source value.
func (u *PeriodicCounterUpdater) RegisterBucketingCounter(bc *BucketingCounter) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.bucketings[bc.source] = &bucketingRegistrant{bc: bc}
}

// DeregisterBucketingCounter stops sampling bc.
func (u *PeriodicCounterUpdater) DeregisterBucketingCounter(bc *BucketingCounter) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.bucketings, bc.source)
}
