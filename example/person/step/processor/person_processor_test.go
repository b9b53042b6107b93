package processor_test

import (
	"context"
	"testing"

	"batchprocessing/example/person/domain/entity"
	"batchprocessing/example/person/step/processor"
	"batchprocessing/pkg/batch/util/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersonProcessor(t *testing.T) {
	ann := entity.Person{FirstName: "Ann", LastName: "Lee"}

	tests := []struct {
		transform string
		want      entity.Person
	}{
		{"", ann},
		{"none", ann},
		{"uppercase", entity.Person{FirstName: "ANN", LastName: "LEE"}},
		{"UPPERCASE", entity.Person{FirstName: "ANN", LastName: "LEE"}},
	}
	for _, tt := range tests {
		t.Run(tt.transform, func(t *testing.T) {
			p, err := processor.NewPersonProcessor(tt.transform)
			require.NoError(t, err)
			got, err := p.Process(context.Background(), ann)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewPersonProcessor_Unknown(t *testing.T) {
	_, err := processor.NewPersonProcessor("reverse")
	assert.True(t, exception.IsKind(err, exception.KindConfiguration))
}
