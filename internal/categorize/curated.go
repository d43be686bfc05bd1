package categorize

import (
	"regexp"
	"strings"

	"nfce/internal"
	"nfce/internal/util"
)

var (
	reStandaloneNumber = regexp.MustCompile(`\b\d+\b`)
	reMultiSpace       = regexp.MustCompile(`\s{2,}`)
)

// legacyAliases folds historical department names onto the current labels.
var legacyAliases = map[string]internal.Category{
	"a": internal.CategoryUncategorized, "e": internal.CategoryUncategorized,
	"i": internal.CategoryUncategorized, "o": internal.CategoryUncategorized,
	"u": internal.CategoryUncategorized, "em cadastro": internal.CategoryUncategorized,
	"cadastro": internal.CategoryUncategorized, "consumo interno": internal.CategoryUncategorized,

	"acougue": internal.CategoryMeat, "frios e embutidos": internal.CategoryMeat,
	"cereais": internal.CategoryGroceries, "matinais": internal.CategoryGroceries,
	"mercearia": internal.CategoryGroceries,
	"doces/salgados": internal.CategorySweets,
	"frutas/verduras": internal.CategoryProduce, "sacolao": internal.CategoryProduce,
	"hortifruti": internal.CategoryProduce,
	"itens domesticos": internal.CategoryCleaning, "itens domestico": internal.CategoryCleaning,
	"laticinios e frios": internal.CategoryDairy, "leite": internal.CategoryDairy,
	"confeitaria": internal.CategoryBakery,
	"bebidas": internal.CategorySoftDrinks,
	"condimentos alhos": internal.CategoryCondiments, "condimentos/alhos": internal.CategoryCondiments,
	"temperos": internal.CategoryCondiments, "tempero": internal.CategoryCondiments,
	"molhos": internal.CategoryCondiments, "molho": internal.CategoryCondiments,
	"refrescos": internal.CategoryWaterJuice, "sucos": internal.CategoryWaterJuice,
	"chocolates bombons": internal.CategoryChocolates,
	"congelados sorvetes": internal.CategoryFrozen,
}

// canonCategory maps a legacy label to the closed vocabulary. Anything that
// does not land on a known label becomes the uncategorized sentinel.
func canonCategory(raw string) internal.Category {
	v := strings.ToLower(strings.TrimSpace(util.StripDiacritics(raw)))
	v = reStandaloneNumber.ReplaceAllString(v, "")
	v = strings.TrimSpace(reMultiSpace.ReplaceAllString(v, " "))
	v = strings.TrimPrefix(v, "mat ")

	if alias, ok := legacyAliases[v]; ok {
		return alias
	}
	if c := internal.Category(v); internal.IsValidCategory(c) {
		return c
	}
	return internal.CategoryUncategorized
}

// stopWords are never used as first-word keys.
var stopWords = map[string]bool{
	"a": true, "e": true, "i": true, "o": true, "u": true,
	"de": true, "da": true, "do": true, "das": true, "dos": true,
	"kg": true, "g": true, "gr": true, "un": true, "und": true, "pct": true,
	"pc": true, "cx": true, "lt": true, "l": true, "ml": true, "emb": true,
	"bd": true, "bv": true,
}

type wordRule struct {
	word     string
	category internal.Category
}

// firstWordOverrides pin whole product families by their leading word,
// regardless of what the seed says.
var firstWordOverrides = func() []wordRule {
	rules := []wordRule{}
	for _, w := range strings.Fields("abobora alface banana batata brocolis cebola cebolinha cenoura chuchu inhame laranja limao manga mexerica morango pepino tomate uva couve") {
		rules = append(rules, wordRule{w, internal.CategoryProduce})
	}
	return append(rules, []wordRule{
		{"carne", internal.CategoryMeat}, {"frango", internal.CategoryMeat},
		{"linguica", internal.CategoryMeat}, {"bovina", internal.CategoryMeat},
		{"suina", internal.CategoryMeat}, {"apresuntado", internal.CategoryMeat},
		{"apres", internal.CategoryMeat},

		{"queijo", internal.CategoryDairy}, {"qj", internal.CategoryDairy},
		{"manteiga", internal.CategoryDairy}, {"iogurte", internal.CategoryDairy},
		{"requeijao", internal.CategoryDairy}, {"leite", internal.CategoryDairy},
		{"mussa", internal.CategoryDairy},

		{"ovo", internal.CategoryEggs}, {"ovos", internal.CategoryEggs},

		{"arroz", internal.CategoryGroceries}, {"feijao", internal.CategoryGroceries},
		{"acucar", internal.CategoryGroceries}, {"cafe", internal.CategoryGroceries},
		{"farinha", internal.CategoryGroceries}, {"fermento", internal.CategoryGroceries},
		{"canjica", internal.CategoryGroceries}, {"amendoim", internal.CategoryGroceries},
		{"oleo", internal.CategoryGroceries},

		{"biscoito", internal.CategoryBiscuits}, {"bolacha", internal.CategoryBiscuits},
		{"bisc", internal.CategoryBiscuits},

		{"pao", internal.CategoryBakery}, {"bolo", internal.CategoryBakery},
		{"salgado", internal.CategoryBakery}, {"sonho", internal.CategoryBakery},

		{"refrigerante", internal.CategorySoftDrinks}, {"coca", internal.CategorySoftDrinks},
		{"guarana", internal.CategorySoftDrinks}, {"pepsi", internal.CategorySoftDrinks},

		{"ketchup", internal.CategoryCondiments}, {"catchup", internal.CategoryCondiments},
		{"catsup", internal.CategoryCondiments}, {"mostarda", internal.CategoryCondiments},
		{"maionese", internal.CategoryCondiments}, {"alho", internal.CategoryCondiments},
		{"tempero", internal.CategoryCondiments}, {"molho", internal.CategoryCondiments},

		{"detergente", internal.CategoryCleaning}, {"amaciante", internal.CategoryCleaning},
		{"sabao", internal.CategoryCleaning}, {"esponja", internal.CategoryCleaning},

		{"toalha", internal.CategoryDisposables}, {"papel", internal.CategoryDisposables},

		{"pip", internal.CategorySweets}, {"pipoca", internal.CategorySweets},
		{"chiclete", internal.CategorySweets}, {"bala", internal.CategorySweets},
		{"pirulito", internal.CategorySweets}, {"salgadinho", internal.CategorySweets},

		{"refresco", internal.CategoryWaterJuice}, {"suco", internal.CategoryWaterJuice},
		{"agua", internal.CategoryWaterJuice},
	}...)
}()

// keywordRules match a word (or word pair) anywhere in the key, and the
// glued form anywhere in the space-stripped key.
var keywordRules = []wordRule{
	{"apres", internal.CategoryMeat},
	{"canj", internal.CategoryGroceries},
	{"espon", internal.CategoryCleaning},
	{"far trig", internal.CategoryGroceries},
	{"ferm bio", internal.CategoryGroceries},
	{"qj", internal.CategoryDairy},
	{"qjo", internal.CategoryDairy},
	{"mussa", internal.CategoryDairy},

	{"bisc", internal.CategoryBiscuits},
	{"pip doce", internal.CategorySweets},
	{"pipoca doce", internal.CategorySweets},
	{"pipoca", internal.CategorySweets},
	{"panko", internal.CategoryGroceries},

	{"cebolaamar", internal.CategoryProduce},
	{"cenouraverm", internal.CategoryProduce},
	{"alfacecrespa", internal.CategoryProduce},
	{"mangatommy", internal.CategoryProduce},
	{"limaotahiti", internal.CategoryProduce},
	{"brocolisninja", internal.CategoryProduce},
	{"bat inglesa", internal.CategoryProduce},

	{"ketchup", internal.CategoryCondiments},
	{"catchup", internal.CategoryCondiments},
	{"catsup", internal.CategoryCondiments},
	{"refresco", internal.CategoryWaterJuice},
	{"achoc", internal.CategoryGroceries},
	{"salgadin", internal.CategorySweets},
	{"salgadinho", internal.CategorySweets},
	{"chiclet", internal.CategorySweets},
	{"refri", internal.CategorySoftDrinks},
	{"iog", internal.CategoryDairy},
	{"tempero", internal.CategoryCondiments},
	{"molho", internal.CategoryCondiments},
	{"toalha", internal.CategoryDisposables},
	{"papel hig", internal.CategoryDisposables},
	{"sonho", internal.CategoryBakery},
}

type patternRule struct {
	expr     string
	category internal.Category
}

// patternRules cover glued and truncated spellings seen on receipts.
var patternRules = []patternRule{
	{`alface\s*crespa`, internal.CategoryProduce},
	{`cenoura\s*vermelha`, internal.CategoryProduce},
	{`manga\s*tommy`, internal.CategoryProduce},
	{`limao\s*tahiti`, internal.CategoryProduce},
	{`brocolis\s*ninja`, internal.CategoryProduce},
	{`achoc`, internal.CategoryGroceries},
	{`chiclet`, internal.CategorySweets},
	{`biscoit`, internal.CategoryBiscuits},
	{`ketchup`, internal.CategoryCondiments},
	{`canjic`, internal.CategoryGroceries},
	{`amendoim`, internal.CategoryGroceries},
	{`detergent`, internal.CategoryCleaning},
	{`amac`, internal.CategoryCleaning},
}

// exactOverrides always win for these exact products.
var exactOverrides = map[string]internal.Category{
	"far.mand.b.pa.300g": internal.CategoryGroceries,
	"m.pi.pre.pach.500g": internal.CategoryGroceries,
	"sabao ype gl.160g":  internal.CategoryCleaning,
	"iog.bat.ped.ab.450": internal.CategoryUncategorized,
	"bisc aymore aman":   internal.CategoryBiscuits,
	"pip doce kerus t":   internal.CategorySweets,
	"bat.inglesa esp.kg": internal.CategoryProduce,
	"catchup heinz 1.0":  internal.CategoryCondiments,
	"chiclete top line":  internal.CategorySweets,
	"far.panko":          internal.CategoryGroceries,
	"ferm.po royal 250g": internal.CategoryGroceries,
	"papel hig cotton":   internal.CategoryDisposables,
	"pres coz pif paf":   internal.CategoryMeat,
	"qjo":                internal.CategoryDairy,
	"refresco mid zero":  internal.CategoryWaterJuice,
	"sonho americano k":  internal.CategoryBakery,
	"io.pens.ze.bat.850": internal.CategoryUncategorized,
	"oleo":               internal.CategoryGroceries,
	"espon":              internal.CategoryCleaning,
}
