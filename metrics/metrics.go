package metrics

import (
	"fmt"
	"reflect"

	"contrib.go.opencensus.io/exporter/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	//DeviceKey tags each record with the Type() of the device
	DeviceKey, _ = tag.NewKey("device")
	//Metrics for block devices
	DeviceMetric      = newDeviceMetric()
	PrometheusHandler *prometheus.Exporter
)

type deviceMetric struct {
	Reads        *stats.Int64Measure `aggr:"Counter"`
	Programs     *stats.Int64Measure `aggr:"Counter"`
	Erases       *stats.Int64Measure `aggr:"Counter"`
	ReadBytes    *stats.Int64Measure `aggr:"Sum"`
	ProgramBytes *stats.Int64Measure `aggr:"Sum"`
	EraseBytes   *stats.Int64Measure `aggr:"Sum"`
	Failures     *stats.Int64Measure `aggr:"Counter"`
	Capacity     *stats.Int64Measure `aggr:"LastValue"`
}

func newDeviceMetric() *deviceMetric {
	return &deviceMetric{
		Reads:        stats.Int64("DeviceReads", "device reads", stats.UnitDimensionless),
		Programs:     stats.Int64("DevicePrograms", "device programs", stats.UnitDimensionless),
		Erases:       stats.Int64("DeviceErases", "device erases", stats.UnitDimensionless),
		ReadBytes:    stats.Int64("DeviceReadBytes", "bytes read from devices", stats.UnitBytes),
		ProgramBytes: stats.Int64("DeviceProgramBytes", "bytes programmed to devices", stats.UnitBytes),
		EraseBytes:   stats.Int64("DeviceEraseBytes", "bytes erased on devices", stats.UnitBytes),
		Failures:     stats.Int64("DeviceFailures", "device calls returning an error", stats.UnitDimensionless),
		Capacity:     stats.Int64("DeviceCapacity", "size of the device", stats.UnitBytes),
	}
}

//use golang tag to create views from measurements
//https://gist.github.com/drewolson/4771479 is a great example.
func createAppendViews(m interface{}, list []*view.View) []*view.View {
	val := reflect.ValueOf(m).Elem()
	for i := 0; i < val.NumField(); i++ {
		typeField := val.Type().Field(i)
		valueField, _ := val.Field(i).Interface().(*stats.Int64Measure)
		golangTag := typeField.Tag
		v := &view.View{
			Name:        valueField.Name(),
			Description: valueField.Description(),
			Measure:     valueField,
			TagKeys:     []tag.Key{DeviceKey},
		}
		//aggreation
		var aggr *view.Aggregation
		switch golangTag.Get("aggr") {
		case "Counter":
			aggr = view.Count()
		case "LastValue":
			aggr = view.LastValue()
		case "Sum":
			aggr = view.Sum()
		default:
			panic("now we only suppport Counter, LastValue and Sum")
		}
		v.Aggregation = aggr

		list = append(list, v)
	}
	return list
}

func init() {
	var err error
	viewList := make([]*view.View, 0)
	viewList = createAppendViews(DeviceMetric, viewList)

	if err := view.Register(viewList...); err != nil {
		panic("failed to register view")
	}

	PrometheusHandler, err = prometheus.NewExporter(prometheus.Options{
		Namespace: "dandy",
		OnError:   func(err error) { fmt.Printf("%v\n", err) },
	})
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}

	view.RegisterExporter(PrometheusHandler)
}
