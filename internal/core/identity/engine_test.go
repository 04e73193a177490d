package identity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/idscan/constants"
)

func fixedClock(year int) Clock {
	return ClockFunc(func() time.Time { return time.Date(year, 6, 15, 0, 0, 0, 0, time.UTC) })
}

func TestEngine_PassportEndToEnd(t *testing.T) {
	e := NewEngine(WithClock(fixedClock(2026)))
	raw := "REPUBLIC OF UTOPIA\nPASSPORT NO: A1234567\nSURNAME: DOE GIVEN NAMES: JOHN\n" +
		"NATIONALITY UTOPIAN\nDATE OF BIRTH 01/02/85\nEXPIRY DATE 12/11/30\n"

	got := e.Extract(raw, constants.Passport)
	assert.Equal(t, Result{
		Name:           "DOE",
		DocumentNumber: "A1234567",
		ExpirationDate: "2030-11-12",
		DocumentType:   constants.Passport,
		MatchedRules: map[constants.Field]string{
			constants.FieldName:           "passport.name.surname",
			constants.FieldDocumentNumber: "passport.document_number.passport_label",
			constants.FieldExpirationDate: "passport.expiration_date.expiry_label",
		},
	}, got)
	assert.False(t, got.HasUndetectedFields())
}

func TestEngine_PassportMissingName(t *testing.T) {
	e := NewEngine(WithClock(fixedClock(2026)))
	got := e.Extract("PASSPORT NO: A1234567\nEXPIRY DATE 12/11/30", constants.Passport)
	assert.Equal(t, "A1234567", got.DocumentNumber)
	assert.Equal(t, "2030-11-12", got.ExpirationDate)
	assert.Equal(t, constants.NotFound, got.Name)
	assert.True(t, got.HasUndetectedFields())
	assert.NotContains(t, got.MatchedRules, constants.FieldName)
}

func TestEngine_LicenseEndToEnd(t *testing.T) {
	e := NewEngine(WithClock(fixedClock(2026)))
	raw := "UNION OF INDIA\nDRIVING LICENCE\nMH32300011066\nName: Rahul Sharma 12-05-1990\nValidity: 11-05-2035"

	got := e.Extract(raw, constants.License)
	assert.Equal(t, "RAHUL SHARMA", got.Name)
	assert.Equal(t, "MH32300011066", got.DocumentNumber)
	assert.Equal(t, "2035-05-11", got.ExpirationDate)
	assert.Equal(t, constants.License, got.DocumentType)
}

func TestEngine_SentinelSubstitution(t *testing.T) {
	e := NewEngine()
	for _, dt := range constants.DocumentTypes() {
		got := e.Extract("NO NUMBER HERE", dt)
		assert.Equal(t, constants.NotFound, got.Name, dt)
		assert.Equal(t, constants.NotFound, got.DocumentNumber, dt)
		assert.Equal(t, constants.NotFound, got.ExpirationDate, dt)
		assert.Nil(t, got.MatchedRules, dt)
		assert.Equal(t, constants.Fields(), got.UndetectedFields())
	}
}

func TestEngine_Totality(t *testing.T) {
	e := NewEngine()
	inputs := []string{"", "   ", "\n\n\r", "\x00\xff\xfe", "::::----////", "12/12/12/12/12", "ÄÖÜ ß 名前"}
	for _, dt := range constants.DocumentTypes() {
		for _, in := range inputs {
			got := e.Extract(in, dt)
			for _, f := range constants.Fields() {
				assert.NotEmpty(t, got.Value(f), "%s %q %s", dt, in, f)
			}
			assert.Equal(t, dt, got.DocumentType)
		}
	}
}

func TestEngine_Deterministic(t *testing.T) {
	e := NewEngine(WithClock(fixedClock(2026)))
	raw := "PASSPORT NO: A1234567 SURNAME DOE GIVEN NAMES JOHN EXPIRY DATE 12/11/30"
	first := e.Extract(raw, constants.Passport)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Extract(raw, constants.Passport))
	}
}

func TestEngine_ConcurrentUse(t *testing.T) {
	e := NewEngine(WithClock(fixedClock(2026)))
	want := e.Extract("PASSPORT NO: A1234567 EXPIRY DATE 12/11/30", constants.Passport)

	var wg sync.WaitGroup
	results := make([]Result, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Extract("PASSPORT NO: A1234567 EXPIRY DATE 12/11/30", constants.Passport)
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, want, r)
	}
}

func TestEngine_UnknownDocumentType(t *testing.T) {
	e := NewEngine()
	got := e.Extract("PASSPORT NO: A1234567", constants.DocumentType("visa"))
	assert.Equal(t, notFoundResult(constants.DocumentType("visa")), got)
}

func TestEngine_WithRules(t *testing.T) {
	rules, err := ParseRules([]byte(validRulesDoc))
	require.NoError(t, err)

	e := NewEngine(WithRules(rules), WithClock(fixedClock(2026)))
	got := e.Extract("name alice no X1234567 exp 1/2/33", constants.Passport)
	assert.Equal(t, "ALICE", got.Name)
	assert.Equal(t, "X1234567", got.DocumentNumber)
	assert.Equal(t, "2033-02-01", got.ExpirationDate)
	assert.Equal(t, "p.e", got.MatchedRules[constants.FieldExpirationDate])
}

func TestEngine_NilOptionsKeepDefaults(t *testing.T) {
	e := NewEngine(WithRules(nil), WithLogger(nil))
	got := e.Extract("PASSPORT NO: A1234567", constants.Passport)
	assert.Equal(t, "A1234567", got.DocumentNumber)
}
