package http

import (
	"bytes"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strconv"

	"exitforecast/batch"
	"exitforecast/ml"
	"exitforecast/predict"

	"go.uber.org/zap"
)

//go:embed templates
var templateFS embed.FS

const importanceNotice = "Feature importance not available for this pipeline."

type pageData struct {
	Info        ml.ArtifactInfo
	Classes     []string
	Departments []string
	Salaries    []string
	Record      predict.InputRecord

	Result *predict.Result
	Error  string

	Batch      *batchView
	BatchError string

	ShowImportance   bool
	Importance       []importanceBar
	ImportanceNotice string
}

type batchView struct {
	FileName string
	Columns  []string
	Rows     [][]string
	Total    int
	Download template.URL
}

type importanceBar struct {
	Feature    string
	Importance float64
	Width      float64
}

func parsePage() (*template.Template, error) {
	funcs := template.FuncMap{
		"percent": func(v float64) string { return fmt.Sprintf("%.2f%%", v*100) },
		"number":  func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) },
		"selected": func(current, option string) bool {
			return current == option
		},
	}
	page, err := template.New("index.html").Funcs(funcs).ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return page, nil
}

func (h *Handler) newPageData(r *http.Request) *pageData {
	data := &pageData{
		Info:        h.svc.Info(),
		Classes:     h.svc.Classes(),
		Departments: predict.Departments,
		Salaries:    predict.Salaries,
		Record:      predict.DefaultRecord(),
	}
	if queryFlag(r, "importance") || r.FormValue("importance") == "1" {
		h.loadImportance(data)
	}
	return data
}

func (h *Handler) loadImportance(data *pageData) {
	data.ShowImportance = true
	importance, err := h.svc.FeatureImportance()
	if err != nil {
		data.ImportanceNotice = importanceNotice
		return
	}
	largest := 0.0
	for _, fw := range importance {
		if fw.Importance > largest {
			largest = fw.Importance
		}
	}
	data.Importance = make([]importanceBar, len(importance))
	for i, fw := range importance {
		width := 0.0
		if largest > 0 {
			width = fw.Importance / largest * 100
		}
		data.Importance[i] = importanceBar{Feature: fw.Feature, Importance: fw.Importance, Width: width}
	}
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, h.newPageData(r))
}

// handlePageSubmit 处理手动输入表单
func (h *Handler) handlePageSubmit(w http.ResponseWriter, r *http.Request) {
	data := h.newPageData(r)

	record, err := recordFromForm(r)
	if err != nil {
		data.Error = err.Error()
		h.render(w, r, http.StatusBadRequest, data)
		return
	}
	data.Record = record

	result, err := h.svc.PredictOne(r.Context(), record)
	if err != nil {
		h.logger.Warn("form prediction failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		data.Error = err.Error()
		h.render(w, r, statusFor(err), data)
		return
	}
	data.Result = &result
	h.render(w, r, http.StatusOK, data)
}

// handlePageBatch 处理页面上的CSV上传
func (h *Handler) handlePageBatch(w http.ResponseWriter, r *http.Request) {
	data := h.newPageData(r)

	table, err := h.readUpload(r)
	if err != nil {
		data.BatchError = err.Error()
		h.render(w, r, statusFor(err), data)
		return
	}
	out, err := h.svc.PredictTable(r.Context(), table, predict.BatchOptions{})
	if err != nil {
		h.logger.Warn("batch prediction failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		data.BatchError = err.Error()
		h.render(w, r, statusFor(err), data)
		return
	}

	var buf bytes.Buffer
	if err := batch.WriteCSV(&buf, out); err != nil {
		data.BatchError = err.Error()
		h.render(w, r, http.StatusInternalServerError, data)
		return
	}

	view := &batchView{
		Columns:  out.Columns,
		Rows:     out.Rows,
		Total:    out.Len(),
		Download: template.URL("data:text/csv;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())),
	}
	if _, header, err := r.FormFile("file"); err == nil {
		view.FileName = header.Filename
	}
	if limit := h.upload.PreviewRows; limit > 0 && len(view.Rows) > limit {
		view.Rows = view.Rows[:limit]
	}
	data.Batch = view
	h.render(w, r, http.StatusOK, data)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data *pageData) {
	var buf bytes.Buffer
	if err := h.page.Execute(&buf, data); err != nil {
		h.logger.Error("render page", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// recordFromForm 解析表单字段，所有字段必填
func recordFromForm(r *http.Request) (predict.InputRecord, error) {
	if err := r.ParseForm(); err != nil {
		return predict.InputRecord{}, fmt.Errorf("%w: %v", predict.ErrInvalidRecord, err)
	}

	var (
		record predict.InputRecord
		errs   []error
	)
	parseFloat := func(name string, dst *float64) {
		v, err := strconv.ParseFloat(r.PostForm.Get(name), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("%s must be a number", name))
			return
		}
		*dst = v
	}
	parseInt := func(name string, dst *int) {
		v, err := strconv.Atoi(r.PostForm.Get(name))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be a whole number", name))
			return
		}
		*dst = v
	}
	parseFloat(predict.FieldSatisfactionLevel, &record.SatisfactionLevel)
	parseFloat(predict.FieldLastEvaluation, &record.LastEvaluation)
	parseInt(predict.FieldNumberProject, &record.NumberProject)
	parseInt(predict.FieldAverageMonthlyHour, &record.AverageMonthlyHour)
	parseInt(predict.FieldTimeSpendCompany, &record.TimeSpendCompany)
	record.Department = r.PostForm.Get(predict.FieldDepartment)
	record.Salary = r.PostForm.Get(predict.FieldSalary)
	if record.Department == "" {
		errs = append(errs, fmt.Errorf("%s is required", predict.FieldDepartment))
	}
	if record.Salary == "" {
		errs = append(errs, fmt.Errorf("%s is required", predict.FieldSalary))
	}

	if len(errs) > 0 {
		return predict.InputRecord{}, fmt.Errorf("%w: %w", predict.ErrInvalidRecord, errors.Join(errs...))
	}
	return record, nil
}
