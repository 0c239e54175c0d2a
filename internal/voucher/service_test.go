package voucher

import (
	"context"
	"testing"
	"time"

	"bookstore/internal/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validNewVoucher() NewVoucher {
	return NewVoucher{
		Code:     " summer5 ",
		Type:     TypeFixedAmount,
		Value:    d(5_000),
		Active:   true,
		StartsAt: testNow,
		EndsAt:   testNow.Add(30 * 24 * time.Hour),
	}
}

func TestCreateNormalizesCode(t *testing.T) {
	svc := NewService(newFakeStore(), NewLedger(clock))

	v, err := svc.Create(context.Background(), validNewVoucher())
	require.NoError(t, err)
	assert.Equal(t, "SUMMER5", v.Code)
	assert.Equal(t, 0, v.UsedCount)

	_, err = svc.Create(context.Background(), validNewVoucher())
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc := NewService(newFakeStore(), NewLedger(clock))

	cases := map[string]func(*NewVoucher){
		"empty code":      func(in *NewVoucher) { in.Code = "  " },
		"unknown type":    func(in *NewVoucher) { in.Type = "bogus" },
		"negative value":  func(in *NewVoucher) { in.Value = d(-1) },
		"percentage >100": func(in *NewVoucher) { in.Type = TypePercentage; in.Value = d(101) },
		"inverted window": func(in *NewVoucher) { in.EndsAt = in.StartsAt },
		"zero limit":      func(in *NewVoucher) { in.UsageLimit = intPtr(0) },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validNewVoucher()
			mutate(&in)
			_, err := svc.Create(context.Background(), in)
			assert.ErrorIs(t, err, apperror.ErrInvalidInput)
		})
	}
}

func TestServiceValidateRejectsNegativeAmount(t *testing.T) {
	svc := NewService(newFakeStore(save10()), NewLedger(clock))

	_, err := svc.Validate(context.Background(), "SAVE10", d(-1), nil)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}
