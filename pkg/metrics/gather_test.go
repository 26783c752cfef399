package metrics

import (
	"fmt"

	dto "github.com/prometheus/client_model/go"
)

// counterValue finds the series of family name whose labels include want.
func counterValue(mfs []*dto.MetricFamily, name string, want map[string]string) (float64, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, series := range mf.GetMetric() {
			if hasLabels(series.GetLabel(), want) {
				return series.GetCounter().GetValue(), nil
			}
		}
		return 0, fmt.Errorf("%s has no series matching %v", name, want)
	}
	return 0, fmt.Errorf("%s not gathered", name)
}

func hasLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
