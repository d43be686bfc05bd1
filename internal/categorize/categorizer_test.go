package categorize

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfce/internal"
)

func defaultCategorizer(t *testing.T) *Categorizer {
	t.Helper()
	seed, err := DefaultSeed()
	require.NoError(t, err)
	return NewReady(seed, nil)
}

func TestCategorizeStages(t *testing.T) {
	c := defaultCategorizer(t)

	cases := []struct {
		input     string
		wantCat   internal.Category
		wantStage string
	}{
		{input: "BANANA PRATA KG", wantCat: internal.CategoryProduce, wantStage: StageFirstWord},
		{input: "BISC AYMORE AMAN", wantCat: internal.CategoryBiscuits, wantStage: StageExact},
		{input: "ACHOC NESCAU 400G", wantCat: internal.CategoryGroceries, wantStage: StageExact},
		{input: "MACARRAO INSTANTANEO LAMEN", wantCat: internal.CategoryPasta, wantStage: StageFirstWord},
		{input: "REFRIG GUARANA ANTARCTICA LATA", wantCat: internal.CategorySoftDrinks, wantStage: StageTwoWord},
		{input: "NOVO KETCHUP PICANTE", wantCat: internal.CategoryCondiments, wantStage: StagePattern},
		{input: "FEIJAOCARIOCAKICALDO1KGPROMO", wantCat: internal.CategoryGroceries, wantStage: StageNoSpace},
		{input: "CERVEJA SKOL LATA 350ML", wantCat: internal.CategoryUncategorized, wantStage: StageExact},
		{input: "Refresco Mid Zero", wantCat: internal.CategoryWaterJuice, wantStage: StageExact},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			cat, stage := c.Lookup(tc.input)
			assert.Equal(t, tc.wantCat, cat)
			assert.Equal(t, tc.wantStage, stage)
		})
	}
}

func TestCategorizeAlwaysReturnsKnownLabel(t *testing.T) {
	c := defaultCategorizer(t)
	for _, in := range []string{"", "   ", "☃☃☃", "zzqx", "123 456", "!!!"} {
		got := c.Categorize(in)
		assert.True(t, internal.IsValidCategory(got), in)
	}
	assert.Equal(t, internal.CategoryUncategorized, c.Categorize(""))
	assert.Equal(t, internal.CategoryUncategorized, c.Categorize("☃☃☃"))
}

func TestCategorizeIsDeterministic(t *testing.T) {
	seed, err := DefaultSeed()
	require.NoError(t, err)
	a := NewReady(seed, nil)
	b := NewReady(seed, nil)
	for _, in := range []string{"banana prata", "pao frances", "sabao ype gl.160g", "creme x", "agua tonica"} {
		assert.Equal(t, a.Categorize(in), a.Categorize(in))
		assert.Equal(t, a.Categorize(in), b.Categorize(in))
	}
}

func TestSeedExactBeatsPatterns(t *testing.T) {
	c := NewReady(Seed{"xyz ketchup especial": "padaria"}, nil)

	cat, stage := c.Lookup("xyz ketchup especial")
	assert.Equal(t, internal.CategoryBakery, cat)
	assert.Equal(t, StageExact, stage)

	cat, stage = c.Lookup("abc ketchup")
	assert.Equal(t, internal.CategoryCondiments, cat)
	assert.Equal(t, StagePattern, stage)
}

func TestFirstWordOverrideReplacesSeedLabel(t *testing.T) {
	c := NewReady(Seed{"LEITE EM PO NINHO": "matinais", "TOMATE PELADO": "mercearia"}, nil)
	assert.Equal(t, internal.CategoryDairy, c.Categorize("LEITE EM PO NINHO"))
	assert.Equal(t, internal.CategoryProduce, c.Categorize("TOMATE PELADO"))
}

func TestCanonCategory(t *testing.T) {
	cases := map[string]internal.Category{
		"acougue 1":          internal.CategoryMeat,
		"Laticínios e Frios": internal.CategoryDairy,
		"MAT LIMPEZA":        internal.CategoryCleaning,
		"sacolão":            internal.CategoryProduce,
		"chocolates bombons": internal.CategoryChocolates,
		"bebidas":            internal.CategorySoftDrinks,
		"refrescos":          internal.CategoryWaterJuice,
		"em cadastro":        internal.CategoryUncategorized,
		"higiene":            internal.CategoryUncategorized,
		"racao":              internal.CategoryPetFood,
		"":                   internal.CategoryUncategorized,
	}
	for raw, want := range cases {
		assert.Equal(t, want, canonCategory(raw), raw)
	}
}

func TestNotReadyAnswersOutros(t *testing.T) {
	c := New(nil)
	select {
	case <-c.Ready():
		t.Fatal("ready before build")
	default:
	}
	cat, stage := c.Lookup("banana prata")
	assert.Equal(t, internal.CategoryUncategorized, cat)
	assert.Equal(t, StageNone, stage)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.WaitReady(ctx), context.DeadlineExceeded)
}

func TestOnReadyFiresOnce(t *testing.T) {
	c := New(nil)
	var mu sync.Mutex
	calls := 0
	c.OnReady(func() { mu.Lock(); calls++; mu.Unlock() })

	seed, err := DefaultSeed()
	require.NoError(t, err)
	c.BuildAsync(seed)
	require.NoError(t, c.WaitReady(context.Background()))

	c.Rebuild(Seed{"pao doce": "padaria"})
	late := make(chan struct{})
	c.OnReady(func() { close(late) })

	select {
	case <-late:
	case <-time.After(time.Second):
		t.Fatal("late OnReady callback did not run")
	}
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestConcurrentBuildAndLookup(t *testing.T) {
	seed, err := DefaultSeed()
	require.NoError(t, err)
	c := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); c.Build(seed) }()
		go func() {
			defer wg.Done()
			got := c.Categorize("banana prata")
			assert.Contains(t, []internal.Category{internal.CategoryUncategorized, internal.CategoryProduce}, got)
		}()
	}
	wg.Wait()
	assert.Equal(t, internal.CategoryProduce, c.Categorize("banana prata"))
}

func TestApplyFillsItems(t *testing.T) {
	c := defaultCategorizer(t)
	items := []internal.ReceiptItem{{Name: "Arroz Tio Joao T1 5kg"}, {Name: "Detergente Ype Neutro"}}
	c.Apply(items)
	require.NotNil(t, items[0].Category)
	assert.Equal(t, internal.CategoryGroceries, *items[0].Category)
	assert.Equal(t, internal.CategoryCleaning, *items[1].Category)
}

func TestLoadSeed(t *testing.T) {
	dir := t.TempDir()

	wrapped := filepath.Join(dir, "wrapped.json")
	require.NoError(t, os.WriteFile(wrapped, []byte(`{"map":{"PAO DOCE":"confeitaria"}}`), 0o600))
	seed, err := LoadSeed(wrapped)
	require.NoError(t, err)
	assert.Equal(t, "confeitaria", seed["PAO DOCE"])

	bare := filepath.Join(dir, "bare.json")
	require.NoError(t, os.WriteFile(bare, []byte(`{"OVOS BRANCOS":"ovos"}`), 0o600))
	seed, err = LoadSeed(bare)
	require.NoError(t, err)
	assert.Len(t, seed, 1)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"map":{"X":1}}`), 0o600))
	_, err = LoadSeed(bad)
	assert.Error(t, err)

	_, err = LoadSeed(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestSeedFromFallsBackToEmbedded(t *testing.T) {
	embedded, err := DefaultSeed()
	require.NoError(t, err)

	seed, err := SeedFrom("  ")
	require.NoError(t, err)
	assert.Equal(t, embedded, seed)

	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"PAO DE QUEIJO":"padaria"}`), 0o600))
	seed, err = SeedFrom(path)
	require.NoError(t, err)
	assert.Equal(t, Seed{"PAO DE QUEIJO": "padaria"}, seed)
}
