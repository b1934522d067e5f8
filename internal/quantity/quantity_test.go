package quantity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/resource"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "binary gi", input: "150Gi", want: "150Gi"},
		{name: "binary mi", input: "500Mi", want: "500Mi"},
		{name: "decimal g", input: "10G", want: "10G"},
		{name: "plain bytes", input: "1024", want: "1024"},
		{name: "surrounding space", input: " 10Gi ", want: "10Gi"},
		{name: "empty", input: "", wantErr: true},
		{name: "bad suffix", input: "10Gb", wantErr: true},
		{name: "not a number", input: "lots", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				var pe *ParseError
				assert.True(t, errors.As(err, &pe), "error should be a *ParseError")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.String())
		})
	}
}

func TestAddSub_Exact(t *testing.T) {
	total := Zero()
	for range 1000 {
		total = total.Add(MustParse("1Mi"))
	}
	assert.Equal(t, "1000Mi", total.String())

	for range 1000 {
		total = total.Sub(MustParse("1Mi"))
	}
	assert.True(t, total.IsZero())
	assert.Equal(t, 0, total.Sign())
}

func TestAddSub_DoNotMutateOperands(t *testing.T) {
	a := MustParse("60Gi")
	b := MustParse("50Gi")

	sum := Add(a, b)
	assert.Equal(t, "110Gi", sum.String())
	assert.Equal(t, "60Gi", a.String())
	assert.Equal(t, "50Gi", b.String())

	diff := Sub(sum, a)
	assert.Equal(t, "50Gi", diff.String())
	assert.Equal(t, "110Gi", sum.String())
}

func TestZeroAddKeepsBinaryFormat(t *testing.T) {
	total := Zero().Add(MustParse("60Gi")).Add(MustParse("50Gi"))
	assert.Equal(t, "110Gi", total.String())
}

func TestCmp(t *testing.T) {
	assert.Equal(t, -1, Cmp(MustParse("1Gi"), MustParse("2Gi")))
	assert.Equal(t, 0, Cmp(MustParse("1Gi"), MustParse("1024Mi")))
	assert.Equal(t, 1, Cmp(MustParse("1G"), MustParse("900Mi")))
	assert.True(t, MustParse("1Gi").Equal(MustParse("1024Mi")))
}

func TestSign(t *testing.T) {
	assert.Equal(t, -1, Sub(MustParse("1Gi"), MustParse("2Gi")).Sign())
	assert.Equal(t, 1, MustParse("1Gi").Sign())
}

func TestPercentOf(t *testing.T) {
	assert.InDelta(t, 50.0, PercentOf(MustParse("75Gi"), MustParse("150Gi")), 0.0001)
	assert.InDelta(t, 110.0, PercentOf(MustParse("110Gi"), MustParse("100Gi")), 0.0001)
	assert.Equal(t, 0.0, PercentOf(MustParse("1Gi"), Zero()))
}

func TestFromResource_Copies(t *testing.T) {
	rq := resource.MustParse("5Gi")
	q := FromResource(rq)
	rq.Add(resource.MustParse("1Gi"))
	assert.Equal(t, "5Gi", q.String())
	r := q.Resource()
	assert.Equal(t, "5Gi", r.String())
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("nope") })
}

func TestBytesAndFloat64(t *testing.T) {
	q := MustParse("150Gi")
	assert.Equal(t, int64(150<<30), q.Bytes())
	assert.InDelta(t, float64(150<<30), q.Float64(), 1)

	assert.Equal(t, int64(2), MustParse("1500m").Bytes(), "fractional bytes round up")
	assert.Equal(t, int64(0), Zero().Bytes())
}
