package metrics

import (
	"reflect"
	"testing"
)

func TestFlattenStatusBuckets(t *testing.T) {
	tests := []struct {
		name    string
		buckets map[string]map[string]int
		want    []StatusBucket
	}{
		{
			name:    "nil buckets",
			buckets: nil,
			want:    nil,
		},
		{
			name:    "empty buckets",
			buckets: map[string]map[string]int{},
			want:    nil,
		},
		{
			name: "single bucket",
			buckets: map[string]map[string]int{
				"STEP3": {"201": 10},
			},
			want: []StatusBucket{
				{Step: "STEP3", Code: "201", Count: 10},
			},
		},
		{
			name: "multiple buckets sorted by count desc",
			buckets: map[string]map[string]int{
				"STEP5": {
					"200": 10,
					"503": 5,
				},
				"STEP1": {
					"200": 20,
				},
			},
			want: []StatusBucket{
				{Step: "STEP1", Code: "200", Count: 20},
				{Step: "STEP5", Code: "200", Count: 10},
				{Step: "STEP5", Code: "503", Count: 5},
			},
		},
		{
			name: "tie breaking by step then code",
			buckets: map[string]map[string]int{
				"STEP6": {
					"200": 10,
					"502": 10,
				},
				"STEP4": {
					"200": 10,
				},
			},
			want: []StatusBucket{
				{Step: "STEP4", Code: "200", Count: 10},
				{Step: "STEP6", Code: "200", Count: 10},
				{Step: "STEP6", Code: "502", Count: 10},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlattenStatusBuckets(tt.buckets)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FlattenStatusBuckets() = %v, want %v", got, tt.want)
			}
		})
	}
}
