package ml

import (
	"errors"
	"fmt"
)

// Step is a named pipeline stage. A pipeline is one Transformer followed by
// a Classifier.
type Step struct {
	Name      string
	Component interface{}
}

type Pipeline struct {
	steps      []Step
	transforms []Transformer // exactly one
	classifier Classifier
	info       ArtifactInfo
}

func NewPipeline(steps ...Step) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, errors.New("pipeline has no steps")
	}
	p := &Pipeline{steps: steps}
	seen := make(map[string]bool, len(steps))
	for i, step := range steps {
		if step.Name == "" {
			return nil, fmt.Errorf("step %d has no name", i)
		}
		if seen[step.Name] {
			return nil, fmt.Errorf("duplicate step name %s", step.Name)
		}
		seen[step.Name] = true

		if i == len(steps)-1 {
			clf, ok := step.Component.(Classifier)
			if !ok {
				return nil, fmt.Errorf("final step %s is not a classifier", step.Name)
			}
			p.classifier = clf
			continue
		}
		tr, ok := step.Component.(Transformer)
		if !ok {
			return nil, fmt.Errorf("step %s is not a transformer", step.Name)
		}
		p.transforms = append(p.transforms, tr)
	}
	if len(p.transforms) != 1 {
		return nil, fmt.Errorf("pipeline needs exactly one transformer step, got %d", len(p.transforms))
	}
	if sized, ok := p.transforms[0].(interface{ Width() int }); ok && sized.Width() != p.classifier.NumFeatures() {
		return nil, fmt.Errorf("preprocessing produces %d features, classifier expects %d", sized.Width(), p.classifier.NumFeatures())
	}
	return p, nil
}

func (p *Pipeline) Classes() []string {
	return p.classifier.Classes()
}

func (p *Pipeline) Info() ArtifactInfo {
	return p.info
}

func (p *Pipeline) NamedStep(name string) (interface{}, bool) {
	for _, step := range p.steps {
		if step.Name == name {
			return step.Component, true
		}
	}
	return nil, false
}

func (p *Pipeline) Steps() []Step {
	return append([]Step(nil), p.steps...)
}

func (p *Pipeline) PredictProba(t *Table) ([][]float64, error) {
	x, err := p.transforms[0].Transform(t)
	if err != nil {
		return nil, err
	}
	if len(x) == 0 {
		return [][]float64{}, nil
	}
	return p.classifier.PredictProba(x)
}

func (p *Pipeline) Predict(t *Table) ([]string, error) {
	proba, err := p.PredictProba(t)
	if err != nil {
		return nil, err
	}
	classes := p.classifier.Classes()
	labels := make([]string, len(proba))
	for i, row := range proba {
		labels[i] = classes[ArgMax(row)]
	}
	return labels, nil
}
