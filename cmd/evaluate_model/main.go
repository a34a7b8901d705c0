package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"exitforecast/batch"
	"exitforecast/ml"
	"exitforecast/predict"
)

func main() {
	modelPath := flag.String("model_path", "./rf_pipeline_model.json", "pipeline artifact path")
	dataPath := flag.String("data", "", "labelled CSV file")
	labelColumn := flag.String("label", "label", "column holding the true class")
	encoding := flag.String("encoding", batch.DefaultEncoding, "CSV character encoding")
	flag.Parse()

	if *dataPath == "" {
		log.Fatal("data is required")
	}

	model, err := ml.LoadModel(*modelPath)
	if err != nil {
		log.Fatalf("failed to load model: %v", err)
	}
	svc, err := predict.NewService(model, predict.Options{})
	if err != nil {
		log.Fatalf("failed to create service: %v", err)
	}

	file, err := os.Open(*dataPath)
	if err != nil {
		log.Fatalf("failed to open data: %v", err)
	}
	defer file.Close()

	table, err := batch.ReadCSV(file, batch.Options{Encoding: *encoding})
	if err != nil {
		log.Fatalf("failed to read data: %v", err)
	}

	report, err := evaluateModel(context.Background(), svc, table, *labelColumn)
	if err != nil {
		log.Fatalf("failed to evaluate model: %v", err)
	}
	report.Print(os.Stdout)
}

type classStats struct {
	Precision float64
	Recall    float64
	Support   int
}

type report struct {
	Rows     int
	Accuracy float64
	Classes  map[string]classStats
}

// evaluateModel scores the table against labelColumn. The label column is
// left in place; the pipeline ignores columns it does not know.
func evaluateModel(ctx context.Context, svc *predict.Service, table *ml.Table, labelColumn string) (*report, error) {
	truth, err := table.Column(labelColumn)
	if err != nil {
		return nil, err
	}
	out, err := svc.PredictTable(ctx, table, predict.BatchOptions{})
	if err != nil {
		return nil, err
	}
	predicted, err := out.Column(predict.PredictionColumn)
	if err != nil {
		return nil, err
	}

	r := &report{Rows: len(truth), Classes: make(map[string]classStats)}
	if len(truth) == 0 {
		return r, nil
	}

	var correct int
	for _, class := range svc.Classes() {
		var truePositive, predictedPositive, actualPositive int
		for i := range truth {
			if predicted[i] == class {
				predictedPositive++
			}
			if truth[i] == class {
				actualPositive++
				if predicted[i] == class {
					truePositive++
				}
			}
		}
		stats := classStats{Support: actualPositive}
		if predictedPositive > 0 {
			stats.Precision = float64(truePositive) / float64(predictedPositive)
		}
		if actualPositive > 0 {
			stats.Recall = float64(truePositive) / float64(actualPositive)
		}
		r.Classes[class] = stats
	}
	for i := range truth {
		if truth[i] == predicted[i] {
			correct++
		}
	}
	r.Accuracy = float64(correct) / float64(len(truth))
	return r, nil
}

func (r *report) Print(w io.Writer) {
	fmt.Fprintf(w, "rows=%d accuracy=%.4f\n", r.Rows, r.Accuracy)

	classes := make([]string, 0, len(r.Classes))
	for class := range r.Classes {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		stats := r.Classes[class]
		fmt.Fprintf(w, "%-10s precision=%.2f recall=%.2f support=%d\n", class, stats.Precision, stats.Recall, stats.Support)
	}
}
