package processor

import (
	"context"
	"fmt"
	"strings"

	"batchprocessing/example/person/domain/entity"
	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/step/processor"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

const (
	TransformNone      = "none"
	TransformUppercase = "uppercase"
)

// UppercaseProcessor は氏名を大文字に変換する ItemProcessor です。
type UppercaseProcessor struct{}

func (UppercaseProcessor) Process(_ context.Context, p entity.Person) (entity.Person, error) {
	out := entity.Person{
		FirstName: strings.ToUpper(p.FirstName),
		LastName:  strings.ToUpper(p.LastName),
	}
	logger.Debugf("Converting (%s) into (%s)", p, out)
	return out, nil
}

// NewPersonProcessor は batch.transform の値に対応する ItemProcessor を返します。
func NewPersonProcessor(transform string) (core.ItemProcessor[entity.Person, entity.Person], error) {
	switch strings.ToLower(transform) {
	case "", TransformNone:
		return processor.PassThrough[entity.Person]{}, nil
	case TransformUppercase:
		return UppercaseProcessor{}, nil
	default:
		return nil, exception.NewConfigurationError("person_processor", fmt.Sprintf("未対応の batch.transform です: %s", transform))
	}
}

var _ core.ItemProcessor[entity.Person, entity.Person] = UppercaseProcessor{}
