package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthlyPricesJSONUsesMonthNames(t *testing.T) {
	m := MonthlyPrices{
		time.January: decimal.NewFromInt(95),
		time.July:    decimal.NewFromInt(150),
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)

	var raw map[string]string
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, 2)
	assert.Contains(t, raw, "january")
	assert.Contains(t, raw, "july")

	var back MonthlyPrices
	require.NoError(t, json.Unmarshal(data, &back))
	july, ok := back.Get(time.July)
	require.True(t, ok)
	assert.True(t, july.Equal(decimal.NewFromInt(150)))
}

func TestMonthlyPricesRejectsUnknownMonth(t *testing.T) {
	var m MonthlyPrices
	err := json.Unmarshal([]byte(`{"juillet": "130"}`), &m)
	assert.Error(t, err, "misspelled month names must not be dropped silently")
}

func TestMonthlyPricesSparseness(t *testing.T) {
	var m MonthlyPrices
	require.NoError(t, json.Unmarshal([]byte(`{"july": "130"}`), &m))

	_, ok := m.Get(time.March)
	assert.False(t, ok, "absent months fall back to the default price")
}

func TestMonthlyPricesCloneIsIndependent(t *testing.T) {
	m := MonthlyPrices{time.July: decimal.NewFromInt(130)}
	c := m.Clone()
	c[time.July] = decimal.NewFromInt(999)

	july, _ := m.Get(time.July)
	assert.True(t, july.Equal(decimal.NewFromInt(130)))

	var nilMap MonthlyPrices
	assert.Nil(t, nilMap.Clone())
}
