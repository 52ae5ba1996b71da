package mongo

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

type moneyDoc struct {
	Amount decimal.Decimal `bson:"amount"`
}

func TestDecimalCodec_StoresDecimal128(t *testing.T) {
	reg := NewRegistry()

	raw, err := bson.MarshalWithRegistry(reg, moneyDoc{Amount: decimal.RequireFromString("12.34")})
	require.NoError(t, err)

	v := bson.Raw(raw).Lookup("amount")
	assert.Equal(t, bsontype.Decimal128, v.Type)

	var out moneyDoc
	require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &out))
	assert.True(t, out.Amount.Equal(decimal.RequireFromString("12.34")), out.Amount.String())
}

func TestDecimalCodec_DecodesLegacyNumbers(t *testing.T) {
	reg := NewRegistry()
	cases := map[string]interface{}{
		"2.5": 2.5,
		"7":   int32(7),
		"9":   int64(9),
		"1.1": "1.1",
	}
	for want, stored := range cases {
		raw, err := bson.Marshal(bson.M{"amount": stored})
		require.NoError(t, err)

		var out moneyDoc
		require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &out), want)
		assert.True(t, out.Amount.Equal(decimal.RequireFromString(want)), "stored %v decoded as %s", stored, out.Amount)
	}
}
