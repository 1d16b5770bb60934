package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inner struct {
	LR float64 `mapstructure:"init_lr" validate:"gt=0"`
}

type sample struct {
	Name     string   `mapstructure:"model_dir" validate:"required"`
	Patience int      `mapstructure:"patience" validate:"gte=1"`
	Kind     string   `mapstructure:"kind" validate:"oneof=local minio"`
	Datasets []string `mapstructure:"datasets" validate:"min=1,unique"`
	Optim    inner    `mapstructure:"optim"`
}

func TestValidate(t *testing.T) {
	err := Validate(sample{Kind: "s3", Datasets: []string{"a", "a"}})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	fields := map[string]string{}
	for _, e := range errs {
		fields[e.Field] = e.Message
	}
	assert.Equal(t, "is required", fields["model_dir"])
	assert.Equal(t, "must be greater than or equal to 1", fields["patience"])
	assert.Equal(t, "must be one of: local minio", fields["kind"])
	assert.Equal(t, "must not contain duplicates", fields["datasets"])
	assert.Equal(t, "must be greater than 0", fields["optim.init_lr"])
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, Validate(sample{
		Name: "m", Patience: 3, Kind: "local", Datasets: []string{"litbank"}, Optim: inner{LR: 1e-3},
	}))
}
