package onnx

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// modelMeta is what a Hugging Face export says about its classes and
// preprocessing.
type modelMeta struct {
	Labels    []string
	NumLabels int

	// Image preprocessing; zero values mean unset.
	ImageSize int
	ImageMean [3]float32
	ImageStd  [3]float32
	hasNorm   bool
}

// loadModelMeta reads config.json (id2label, label2id, num_labels), an
// optional label_map.json override, and preprocessor_config.json for image
// models. Missing files are not errors.
func loadModelMeta(dir string) (modelMeta, error) {
	var meta modelMeta

	if data, err := os.ReadFile(filepath.Join(dir, "config.json")); err == nil {
		var cfg struct {
			NumLabels int               `json:"num_labels"`
			ID2Label  map[string]string `json:"id2label"`
			Label2ID  map[string]int    `json:"label2id"`
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return meta, fmt.Errorf("decode config.json: %w", err)
		}
		meta.NumLabels = cfg.NumLabels
		meta.Labels = labelsFromIDMap(cfg.ID2Label)
		if len(meta.Labels) == 0 && len(cfg.Label2ID) > 0 {
			id2label := make(map[string]string, len(cfg.Label2ID))
			for lbl, id := range cfg.Label2ID {
				id2label[strconv.Itoa(id)] = lbl
			}
			meta.Labels = labelsFromIDMap(id2label)
		}
	}

	if data, err := os.ReadFile(filepath.Join(dir, "label_map.json")); err == nil {
		var list []string
		if err := json.Unmarshal(data, &list); err == nil && len(list) > 0 {
			meta.Labels = list
		} else {
			var idMap map[string]string
			if err := json.Unmarshal(data, &idMap); err != nil {
				return meta, fmt.Errorf("decode label_map.json: %w", err)
			}
			meta.Labels = labelsFromIDMap(idMap)
		}
		meta.NumLabels = len(meta.Labels)
	}

	if data, err := os.ReadFile(filepath.Join(dir, "preprocessor_config.json")); err == nil {
		var pp struct {
			Size      json.RawMessage `json:"size"`
			ImageMean []float32       `json:"image_mean"`
			ImageStd  []float32       `json:"image_std"`
		}
		if err := json.Unmarshal(data, &pp); err != nil {
			return meta, fmt.Errorf("decode preprocessor_config.json: %w", err)
		}
		meta.ImageSize = parseSize(pp.Size)
		if len(pp.ImageMean) == 3 && len(pp.ImageStd) == 3 && pp.ImageStd[0] > 0 && pp.ImageStd[1] > 0 && pp.ImageStd[2] > 0 {
			copy(meta.ImageMean[:], pp.ImageMean)
			copy(meta.ImageStd[:], pp.ImageStd)
			meta.hasNorm = true
		}
	}

	if meta.NumLabels <= 0 {
		meta.NumLabels = len(meta.Labels)
	}
	return meta, nil
}

// parseSize accepts the integer and {"height","width"} forms.
func parseSize(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var hw struct {
		Height       int `json:"height"`
		Width        int `json:"width"`
		ShortestEdge int `json:"shortest_edge"`
	}
	if err := json.Unmarshal(raw, &hw); err != nil {
		return 0
	}
	switch {
	case hw.Height > 0:
		return hw.Height
	case hw.ShortestEdge > 0:
		return hw.ShortestEdge
	default:
		return hw.Width
	}
}

// labelsFromIDMap orders labels by numeric id. Gaps get LABEL_<id>.
func labelsFromIDMap(id2label map[string]string) []string {
	if len(id2label) == 0 {
		return nil
	}
	ids := make([]int, 0, len(id2label))
	byID := make(map[int]string, len(id2label))
	for k, v := range id2label {
		id, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || id < 0 {
			continue
		}
		ids = append(ids, id)
		byID[id] = v
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Ints(ids)
	labels := make([]string, ids[len(ids)-1]+1)
	for i := range labels {
		if v, ok := byID[i]; ok {
			labels[i] = v
		} else {
			labels[i] = "LABEL_" + strconv.Itoa(i)
		}
	}
	return labels
}

// labelAt names class i, falling back to LABEL_<i>.
func (m modelMeta) labelAt(i int) string {
	if i >= 0 && i < len(m.Labels) && m.Labels[i] != "" {
		return m.Labels[i]
	}
	return "LABEL_" + strconv.Itoa(i)
}
