package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aristath/sectorbl/internal/httpapi"
	"github.com/aristath/sectorbl/internal/modules/views"
)

// parseViews converts TICKER:VALUE[:CONFIDENCE] flags into manual views.
// Confidence defaults to 0.5.
func parseViews(specs []string) ([]views.ManualView, error) {
	out := make([]views.ManualView, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid view %q, want TICKER:VALUE[:CONFIDENCE]", spec)
		}

		v := views.ManualView{
			Ticker:     strings.ToUpper(strings.TrimSpace(parts[0])),
			Confidence: 0.5,
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid view value in %q: %w", spec, err)
		}
		v.Value = value
		if len(parts) == 3 {
			conf, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid view confidence in %q: %w", spec, err)
			}
			v.Confidence = conf
		}
		if err := httpapi.Validate(v); err != nil {
			return nil, fmt.Errorf("view %q: %w", spec, err)
		}
		out = append(out, v)
	}
	return out, nil
}
