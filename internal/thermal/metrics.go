package thermal

import "strconv"

// CSVHeader is the fixed column set of the per-run metrics log.
var CSVHeader = []string{
	"frame_number",
	"mean_temperature",
	"heat_range",
	"image_filename",
	"wav_filename",
	"cleaned_image",
	"thermal_image",
	"hot_item_count",
	"cold_item_count",
	"total_item_count",
}

// MetricsRow is one frame's entry in the metrics log.
type MetricsRow struct {
	FrameNumber      int
	MeanTemperature  float64
	HeatRange        string
	ImageFilename    string
	WavFilename      string
	CleanedImagePath string
	ThermalImagePath string
	HotCount         int
	ColdCount        int
	TotalCount       int
}

// Record renders the row in CSVHeader order.
func (m MetricsRow) Record() []string {
	return []string{
		strconv.Itoa(m.FrameNumber),
		strconv.FormatFloat(m.MeanTemperature, 'f', -1, 64),
		m.HeatRange,
		m.ImageFilename,
		m.WavFilename,
		m.CleanedImagePath,
		m.ThermalImagePath,
		strconv.Itoa(m.HotCount),
		strconv.Itoa(m.ColdCount),
		strconv.Itoa(m.TotalCount),
	}
}

// RowWriter persists batches of metrics rows in order.
type RowWriter interface {
	WriteRows(rows []MetricsRow) error
}
