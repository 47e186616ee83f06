// Package charts turns a snapshot into the series drawn on the dashboard.
package charts

import (
	"time"

	"github.com/docker/go-units"

	"storage-dashboard/goutils/datamodel"
)

const (
	dayLayout = "2006-01-02"

	// size histogram buckets double from 1MB while below 5GB
	firstBucketBytes = 1000000
	maxBucketBytes   = 5000000000
)

type (
	DayCount struct {
		Day   string `json:"day"`
		Count int    `json:"count"`
	}

	SizeBucket struct {
		// UpperBound is exclusive.
		UpperBound int64  `json:"upperBound"`
		Label      string `json:"label"`
		Count      int    `json:"count"`
	}

	Charts struct {
		ContractsPerDay      []DayCount   `json:"contractsPerDay"`
		UploadsPerDay        []DayCount   `json:"uploadsPerDay"`
		FileSizeDistribution []SizeBucket `json:"fileSizeDistribution"`
	}
)

// Build computes every chart of the dashboard for the last days calendar days ending at now.
func Build(snapshot *datamodel.Snapshot, days int, now time.Time) *Charts {
	if snapshot == nil {
		snapshot = new(datamodel.Snapshot)
	}

	return &Charts{
		ContractsPerDay:      ContractsPerDay(snapshot.Contracts, days, now),
		UploadsPerDay:        UploadsPerDay(snapshot.Files, days, now),
		FileSizeDistribution: FileSizeDistribution(snapshot.Files),
	}
}

// ContractsPerDay counts contracts by the calendar day they started on, oldest day first.
// Contracts outside the window are ignored.
func ContractsPerDay(contracts []datamodel.Contract, days int, now time.Time) []DayCount {
	series, index := previousDays(days, now)

	for _, contract := range contracts {
		if i, ok := index[contract.StartDate.In(now.Location()).Format(dayLayout)]; ok {
			series[i].Count++
		}
	}

	return series
}

// UploadsPerDay counts uploaded versions by calendar day, oldest day first.
func UploadsPerDay(files []datamodel.File, days int, now time.Time) []DayCount {
	series, index := previousDays(days, now)

	for _, file := range files {
		for _, version := range file.Versions {
			if i, ok := index[version.UploadTime.In(now.Location()).Format(dayLayout)]; ok {
				series[i].Count++
			}
		}
	}

	return series
}

func previousDays(days int, now time.Time) ([]DayCount, map[string]int) {
	if days < 0 {
		days = 0
	}

	series := make([]DayCount, days)
	index := make(map[string]int, days)

	for i := 0; i < days; i++ {
		day := now.AddDate(0, 0, i-(days-1)).Format(dayLayout)
		series[i] = DayCount{Day: day}
		index[day] = i
	}

	return series, index
}

// FileSizeDistribution counts every version in the first bucket whose bound exceeds its size.
// Versions at or above the largest bound are not counted.
func FileSizeDistribution(files []datamodel.File) []SizeBucket {
	buckets := make([]SizeBucket, 0)

	for bound := int64(firstBucketBytes); bound < maxBucketBytes; bound *= 2 {
		buckets = append(buckets, SizeBucket{UpperBound: bound, Label: HumanSize(bound)})
	}

	for _, file := range files {
		for _, version := range file.Versions {
			for i := range buckets {
				if version.Size < buckets[i].UpperBound {
					buckets[i].Count++

					break
				}
			}
		}
	}

	return buckets
}

// HumanSize renders a byte count with decimal units, e.g. 4096000000 -> 4.1GB.
func HumanSize(bytes int64) string {
	return units.HumanSizeWithPrecision(float64(bytes), 3)
}
