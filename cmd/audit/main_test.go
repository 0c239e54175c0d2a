package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"bookstore/internal/audit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedAuditor(value float64) *audit.Auditor {
	a := audit.NewAuditor(nil, nil)
	a.RegisterCheck(audit.Check{
		Name: "stock",
		Metrics: []audit.Metric{{
			Name:      "negative_stock",
			Query:     func(context.Context) (float64, error) { return value, nil },
			Threshold: audit.Threshold{Operator: "==", Value: 0},
		}},
	})
	return a
}

func TestWriteReportExitCodes(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cases := []struct {
		name  string
		value float64
		code  int
	}{
		{"held", 0, 0},
		{"violated", 4, exitViolated},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a := fixedAuditor(c.value)
			report, err := sample(context.Background(), a, 0, time.Second)
			require.NoError(t, err)

			var out bytes.Buffer
			code, err := writeReport(&out, report, log, len(a.Checks()))
			require.NoError(t, err)
			assert.Equal(t, c.code, code)

			var decoded audit.Report
			require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
			assert.Equal(t, c.value == 0, decoded.Held)
		})
	}
}
