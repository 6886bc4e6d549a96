package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/evdnx/gotsengine/executor"
	"github.com/evdnx/gotsengine/logger"
	"github.com/evdnx/gotsengine/types"
)

var ErrMalformedRow = errors.New("feed: malformed row")

// Feed delivers price ticks until ctx is cancelled or the source is
// exhausted; either way the returned channel is closed.
type Feed interface {
	Subscribe(ctx context.Context) (<-chan types.Tick, error)
}

// ChanFeed wraps an existing tick channel.
type ChanFeed struct {
	C <-chan types.Tick
}

func (f ChanFeed) Subscribe(ctx context.Context) (<-chan types.Tick, error) {
	out := make(chan types.Tick)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-f.C:
				if !ok {
					return
				}
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// CSVFeed replays rows of instrument,price,timestamp (RFC 3339). A header
// row and blank lines are skipped. Rows that do not parse are logged and
// skipped unless Strict is set, in which case replay stops at the first.
type CSVFeed struct {
	R      io.Reader
	Log    logger.Logger
	Strict bool
	// Tap, when set, sees every tick before it is delivered.
	Tap func(types.Tick)
}

func (f *CSVFeed) Subscribe(ctx context.Context) (<-chan types.Tick, error) {
	if f.R == nil {
		return nil, errors.New("feed: csv reader is nil")
	}
	log := f.Log
	if log == nil {
		log = logger.Nop()
	}
	r := csv.NewReader(f.R)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comment = '#'

	out := make(chan types.Tick, 64)
	go func() {
		defer close(out)
		line := 0
		for {
			rec, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			line++
			if err != nil {
				log.Error("feed_read_failed", logger.Int("record", line), logger.Err(err))
				return
			}
			if line == 1 && isHeader(rec) {
				continue
			}
			t, err := ParseRow(rec)
			if err != nil {
				log.Warn("feed_row_skipped", logger.Int("record", line), logger.Err(err))
				if f.Strict {
					return
				}
				continue
			}
			if f.Tap != nil {
				f.Tap(t)
			}
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func isHeader(rec []string) bool {
	if len(rec) < 2 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
	return err != nil
}

// ParseRow turns one CSV record into a Tick.
func ParseRow(rec []string) (types.Tick, error) {
	if len(rec) != 3 {
		return types.Tick{}, fmt.Errorf("%w: want 3 fields, got %d", ErrMalformedRow, len(rec))
	}
	inst := strings.TrimSpace(rec[0])
	if inst == "" {
		return types.Tick{}, fmt.Errorf("%w: empty instrument", ErrMalformedRow)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
	if err != nil || price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return types.Tick{}, fmt.Errorf("%w: bad price %q", ErrMalformedRow, rec[1])
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(rec[2]))
	if err != nil {
		return types.Tick{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformedRow, rec[2])
	}
	return types.Tick{Instrument: inst, Price: price, Time: ts}, nil
}

// BrokerFeed subscribes the listed instruments at a broker and relays its
// tick stream.
type BrokerFeed struct {
	Broker      executor.Broker
	Instruments []string
	Log         logger.Logger
}

func (f *BrokerFeed) Subscribe(ctx context.Context) (<-chan types.Tick, error) {
	for _, inst := range f.Instruments {
		if err := f.Broker.Subscribe(ctx, inst); err != nil {
			return nil, fmt.Errorf("feed: subscribe %s: %w", inst, err)
		}
	}
	out, err := ChanFeed{C: f.Broker.Ticks()}.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		// ctx is already done; unsubscribe on a fresh one.
		for _, inst := range f.Instruments {
			if err := f.Broker.Unsubscribe(context.Background(), inst); err != nil && f.Log != nil {
				f.Log.Warn("feed_unsubscribe_failed", logger.String("instrument", inst), logger.Err(err))
			}
		}
	}()
	return out, nil
}
