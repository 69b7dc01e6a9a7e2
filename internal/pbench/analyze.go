package pbench

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

// WriteSample writes s as one "seq;status;rtt_us;error" line.
func WriteSample(w io.Writer, s Sample) error {
	errText := ""
	if s.Err != nil {
		errText = strings.ReplaceAll(s.Err.Error(), "\n", " ")
	}
	_, err := fmt.Fprintf(w, "%d;%s;%d;%s\n", s.Seq, s.Status, s.RTT.Microseconds(), errText)
	return err
}

// ParseSample is the inverse of WriteSample. Error text is kept verbatim.
func ParseSample(line string) (Sample, error) {
	parts := strings.SplitN(line, ";", 4)
	if len(parts) != 4 {
		return Sample{}, fmt.Errorf("bad line: %q", line)
	}

	seq, err := strconv.Atoi(parts[0])
	if err != nil {
		return Sample{}, fmt.Errorf("bad sequence %q: %v", parts[0], err)
	}
	rtt, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("bad rtt %q: %v", parts[2], err)
	}

	s := Sample{Seq: seq, Status: parts[1], RTT: time.Duration(rtt) * time.Microsecond}
	if parts[3] != "" {
		s.Err = errors.New(parts[3])
	}
	return s, nil
}

// ReadSamples parses every line of r. Malformed lines are reported through
// skip, when not nil, and otherwise ignored.
func ReadSamples(r io.Reader, skip func(line int, err error)) ([]Sample, error) {
	var samples []Sample
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		s, err := ParseSample(line)
		if err != nil {
			if skip != nil {
				skip(n, err)
			}
			continue
		}
		samples = append(samples, s)
	}
	return samples, sc.Err()
}

// Summarize aggregates samples. Round-trip statistics cover successful
// samples only. Elapsed and Throughput are left to the caller.
func Summarize(samples []Sample) Summary {
	summary := Summary{Statuses: make(map[string]int)}
	rtts := make([]float64, 0, len(samples))
	for _, s := range samples {
		summary.Requests++
		if s.Err != nil {
			summary.Failed++
			continue
		}
		summary.Succeeded++
		summary.Statuses[s.Status]++
		rtts = append(rtts, float64(s.RTT))
	}

	if len(rtts) > 0 {
		sort.Float64s(rtts)
		summary.Mean = time.Duration(stat.Mean(rtts, nil))
		summary.P50 = time.Duration(stat.Quantile(0.5, stat.Empirical, rtts, nil))
		summary.P99 = time.Duration(stat.Quantile(0.99, stat.Empirical, rtts, nil))
	}
	return summary
}
