package classifier

import "regexp"

// pattern is a single named indicator
type pattern struct {
	name string
	re   *regexp.Regexp
}

func p(name, expr string) pattern {
	return pattern{name: name, re: regexp.MustCompile(`(?i)` + expr)}
}

type categoryPatterns struct {
	category Category
	patterns []pattern
}

// categoryTable is evaluated in order; earlier entries win score ties.
var categoryTable = []categoryPatterns{
	{CategoryCode, []pattern{
		p("programming-terms", `\b(code|coding|program|programming|script|function|class|method|variable|compiler?|syntax|debug|debugging|bug|refactor|refactoring|algorithm)\b`),
		p("web-api-terms", `\b(api|apis|rest|restful|endpoint|endpoints|http|json|sdk|framework|library|database|sql)\b`),
		p("implementation-verbs", `\b(implement|implements|implemented|implementing|implementation)\b`),
		p("language-names", `\b(python|javascript|typescript|golang|java|rust|ruby|php|kotlin|swift|react|django|flask|node\.?js)\b`),
		p("code-syntax", "```|\\w+\\(\\)"),
	}},
	{CategoryKnowledgeGraph, []pattern{
		p("relationship-terms", `\b(relationship|relationships|related to|connected to|connection between|link between)\b`),
		p("graph-terms", `\b(entity|entities|graph|ontology|knowledge graph|network of)\b`),
		p("origin-questions", `\bwho (founded|created|invented|owns|works for)\b`),
	}},
	{CategoryComparative, []pattern{
		p("compare-verbs", `\b(compare|comparison|comparing|versus|vs)\b`),
		p("difference-between", `\b(difference|differences) between\b`),
		p("comparative-adjectives", `\b(better|worse|faster|slower|cheaper) than\b`),
		p("pros-cons", `\b(pros and cons|advantages and disadvantages|trade-?offs?)\b`),
		p("which-is-best", `\bwhich is (better|best|faster)\b`),
	}},
	{CategoryAnalytical, []pattern{
		p("analysis-verbs", `\b(analy[sz]e|analysis|evaluate|assess|examine|investigate)\b`),
		p("why-questions", `\bwhy (does|do|is|are|did)\b`),
		p("causal-terms", `\b(impact|effect|effects|cause|causes|implication|implications|trend|trends|correlation)\b`),
	}},
	{CategoryProcedural, []pattern{
		p("how-do-i", `\bhow (do|can|should|would) (i|you|we)\b`),
		p("how-to", `\bhow to\b`),
		p("procedure-terms", `\b(step|steps|step-by-step|guide|tutorial|instructions|setup|set up|install|configure)\b`),
	}},
	{CategoryCreative, []pattern{
		p("creative-request", `\b(write|compose|draft)\b.*\b(story|poem|song|essay|haiku|lyrics|letter)\b`),
		p("creative-verbs", `\b(imagine|brainstorm|invent|fictional|creative)\b`),
		p("creative-forms", `\b(story|poem|haiku|lyrics)\b`),
	}},
	{CategoryOpinion, []pattern{
		p("what-do-you-think", `\bwhat do you think\b`),
		p("ask-opinion", `\b(your|you) (opinion|view|take)\b`),
		p("should-i", `\bshould i\b`),
		p("preference-terms", `\b(recommend|recommendation|suggest|best|worst|favorite|favourite)\b`),
	}},
	{CategoryGeneralFactual, []pattern{
		p("wh-questions", `\b(what|who|when|where) (is|are|was|were|did)\b`),
		p("definition-terms", `\b(define|definition|meaning of|fact|facts)\b`),
		p("quantity-questions", `\bhow (many|much|old|far|long|tall|big)\b`),
		p("factual-terms", `\b(capital|population|located|born|founded)\b`),
	}},
}

var complexityTable = map[Complexity][]pattern{
	ComplexitySimple: {
		p("simple-questions", `\b(what is|who is|when is|when was|when did|where is|define|list|name)\b`),
		p("brevity-terms", `\b(quick|quickly|simple|brief|briefly|short)\b`),
	},
	ComplexityModerate: {
		p("how-questions", `\bhow (do|does|can|to)\b`),
		p("explanation-verbs", `\b(explain|describe|implement|compare|difference)\b`),
		p("example-terms", `\b(example|examples)\b`),
	},
	ComplexityComplex: {
		p("design-terms", `\b(architecture|design|optimi[sz]e|optimization|scalable|scalability|distributed|trade-?offs?|comprehensive|in-depth|in detail|detailed)\b`),
		p("depth-terms", `\b(analy[sz]e|evaluate|strategy|strategies|multiple|various)\b`),
		p("breadth-terms", `\b(step[- ]by[- ]step|end[- ]to[- ]end)\b`),
	},
}

// preferredAgents is the static agent suggestion per category
var preferredAgents = map[Category][]string{
	CategoryGeneralFactual: {"web_search_agent", "synthesis_agent"},
	CategoryCode:           {"code_agent", "web_search_agent"},
	CategoryKnowledgeGraph: {"knowledge_graph_agent", "synthesis_agent"},
	CategoryAnalytical:     {"analysis_agent", "web_search_agent", "synthesis_agent"},
	CategoryComparative:    {"web_search_agent", "analysis_agent", "synthesis_agent"},
	CategoryProcedural:     {"web_search_agent", "synthesis_agent"},
	CategoryCreative:       {"synthesis_agent"},
	CategoryOpinion:        {"synthesis_agent"},
	CategoryUnknown:        {"synthesis_agent"},
}

// baseHints are per-category routing defaults before the complexity adjustment
var baseHints = map[Category]RoutingHints{
	CategoryGeneralFactual: {ExecutionStrategy: StrategyDirect, Priority: PriorityNormal, EstimatedTokens: 300, CacheStrategy: CacheAggressive},
	CategoryCode:           {ExecutionStrategy: StrategySequential, Priority: PriorityHigh, EstimatedTokens: 800, CacheStrategy: CacheStandard},
	CategoryKnowledgeGraph: {ExecutionStrategy: StrategySequential, Priority: PriorityNormal, EstimatedTokens: 600, CacheStrategy: CacheStandard},
	CategoryAnalytical:     {ExecutionStrategy: StrategySequential, Priority: PriorityNormal, EstimatedTokens: 1000, CacheStrategy: CacheStandard},
	CategoryComparative:    {ExecutionStrategy: StrategyParallel, Priority: PriorityNormal, EstimatedTokens: 900, CacheStrategy: CacheStandard},
	CategoryProcedural:     {ExecutionStrategy: StrategySequential, Priority: PriorityNormal, EstimatedTokens: 700, CacheStrategy: CacheAggressive},
	CategoryCreative:       {ExecutionStrategy: StrategyDirect, Priority: PriorityLow, EstimatedTokens: 800, CacheStrategy: CacheNone},
	CategoryOpinion:        {ExecutionStrategy: StrategyDirect, Priority: PriorityLow, EstimatedTokens: 400, CacheStrategy: CacheNone},
	CategoryUnknown:        {ExecutionStrategy: StrategyDirect, Priority: PriorityLow, EstimatedTokens: 300, CacheStrategy: CacheNone},
}

var tokenMultiplier = map[Complexity]int{
	ComplexitySimple:   1,
	ComplexityModerate: 2,
	ComplexityComplex:  4,
}
