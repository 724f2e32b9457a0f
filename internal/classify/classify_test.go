package classify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/selfcheckout/internal/model"
)

// stubClassifier maps image contents to canned results.
type stubClassifier map[string]Result

func (s stubClassifier) Classify(_ context.Context, img []byte) (Result, error) {
	r, ok := s[string(img)]
	if !ok {
		return Unknown(), ErrMalformedImage
	}
	return r, nil
}

func result(label string, conf float64, second string, conf2 float64) Result {
	return Result{
		Label:      label,
		Confidence: conf,
		Top1:       model.Candidate{Label: label, Confidence: conf},
		Top2:       model.Candidate{Label: second, Confidence: conf2},
	}
}

func TestFromProbabilities_RanksTopTwo(t *testing.T) {
	r, err := FromProbabilities([]string{"Aquafina", "Coca", "Pepsi"}, []float64{0.1, 0.7, 0.2})
	require.NoError(t, err)

	assert.Equal(t, "Coca", r.Label)
	assert.Equal(t, 0.7, r.Confidence)
	assert.Equal(t, model.Candidate{Label: "Coca", Confidence: 0.7}, r.Top1)
	assert.Equal(t, model.Candidate{Label: "Pepsi", Confidence: 0.2}, r.Top2)
}

func TestFromProbabilities_SingleLabel(t *testing.T) {
	r, err := FromProbabilities([]string{"Only"}, []float64{1})
	require.NoError(t, err)
	assert.Equal(t, r.Top1, r.Top2)
}

func TestFromProbabilities_MismatchedLength(t *testing.T) {
	_, err := FromProbabilities([]string{"a", "b"}, []float64{1})
	assert.Error(t, err)

	_, err = FromProbabilities(nil, nil)
	assert.Error(t, err)
}

func TestDecide(t *testing.T) {
	r := result("Water", 0.95, "Coke", 0.03)
	assert.Equal(t, "Water", Decide(r, 0.9))
	assert.Equal(t, "Water", Decide(r, 0.95), "threshold is inclusive")
	assert.Equal(t, model.UnknownLabel, Decide(r, 0.96))
	assert.Equal(t, model.UnknownLabel, Decide(Unknown(), 0))
}

func TestParseLabelLine(t *testing.T) {
	assert.Equal(t, "Aquafina", ParseLabelLine("0 Aquafina"))
	assert.Equal(t, "Trà Xanh 0 độ", ParseLabelLine("12 Trà Xanh 0 độ"))
	assert.Equal(t, "Pepsi", ParseLabelLine("Pepsi"))
}

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("0 Aquafina\n\n1 Coca Cola\n2 Pepsi\n"), 0o644))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Aquafina", "Coca Cola", "Pepsi"}, labels)
}

func TestLoadLabels_Missing(t *testing.T) {
	_, err := LoadLabels(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestScan_MalformedDegradesToUnknown(t *testing.T) {
	sr, err := Scan(context.Background(), stubClassifier{}, []byte("garbage"), 0.9)
	require.NoError(t, err)

	assert.Equal(t, model.UnknownLabel, sr.Label)
	assert.Equal(t, "error", sr.Top1.Label)
	assert.Equal(t, 0.9, sr.Threshold)
}

type failingClassifier struct{ err error }

func (f failingClassifier) Classify(context.Context, []byte) (Result, error) {
	return Result{}, f.err
}

func TestScan_PropagatesOtherErrors(t *testing.T) {
	_, err := Scan(context.Background(), failingClassifier{context.DeadlineExceeded}, []byte("x"), 0.9)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestVote_Plurality(t *testing.T) {
	c := stubClassifier{
		"a": result("Water", 0.91, "Coke", 0.05),
		"b": result("Coke", 0.97, "Water", 0.02),
		"c": result("Water", 0.96, "Coke", 0.03),
	}

	v, err := Vote(context.Background(), c, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, 0.9)
	require.NoError(t, err)

	assert.Equal(t, "Water", v.FinalLabel)
	assert.Equal(t, 0.96, v.FinalConfidence)
	assert.Equal(t, map[string]int{"Water": 2, "Coke": 1}, v.Votes)
	assert.Len(t, v.Results, 3)
}

func TestVote_TieGoesToFirstSeen(t *testing.T) {
	c := stubClassifier{
		"a": result("Coke", 0.93, "Water", 0.05),
		"b": result("Water", 0.99, "Coke", 0.01),
	}

	v, err := Vote(context.Background(), c, [][]byte{[]byte("a"), []byte("b")}, 0.9)
	require.NoError(t, err)
	assert.Equal(t, "Coke", v.FinalLabel)
	assert.Equal(t, 0.93, v.FinalConfidence)
}

func TestVote_BelowThresholdVotesUnknown(t *testing.T) {
	c := stubClassifier{
		"a": result("Coke", 0.40, "Water", 0.30),
		"b": result("Water", 0.50, "Coke", 0.20),
		"c": result("Water", 0.95, "Coke", 0.01),
	}

	v, err := Vote(context.Background(), c, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, 0.9)
	require.NoError(t, err)
	assert.Equal(t, model.UnknownLabel, v.FinalLabel)
	assert.Equal(t, 0.50, v.FinalConfidence)
}

func TestVote_CapsImageCount(t *testing.T) {
	c := stubClassifier{"a": result("Water", 0.99, "Coke", 0.01)}
	imgs := [][]byte{[]byte("a"), []byte("a"), []byte("a"), []byte("a"), []byte("a")}

	v, err := Vote(context.Background(), c, imgs, 0.9)
	require.NoError(t, err)
	assert.Len(t, v.Results, MaxVoteImages)
	assert.Equal(t, MaxVoteImages, v.Votes["Water"])
}

func TestVote_NoImages(t *testing.T) {
	_, err := Vote(context.Background(), stubClassifier{}, nil, 0.9)
	assert.Error(t, err)
}
