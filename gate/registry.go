package gate

import (
	"github.com/c360studio/semgate/rules"
)

// Rule names. Rules run in name order within their stage, so a rule that
// depends on another's normalization must sort after it.
const (
	RuleMaintainAccessRights  = "maintain-access-rights"
	RuleMaintainDefaultValues = "maintain-default-values"
	RuleMaintainLanguageTags  = "maintain-language-tags"
	RuleMaintainPropertyRange = "maintain-property-range"
	RuleMaintainWKT           = "maintain-wkt"
	RuleNormalizeIdentifiers  = "normalize-identifiers"

	RuleCheckTitles            = "check-and-derive-titles"
	RuleCheckBibLaTeX          = "check-biblatex"
	RuleCheckCardinalities     = "check-cardinalities"
	RuleCheckIdentifierCount   = "check-identifier-count"
	RuleCheckLanguageTags      = "check-language-tags"
	RuleCheckPropertyTypes     = "check-property-types"
	RuleCheckUnknownProperties = "check-unknown-properties"

	RuleMaintainDependentPID = "maintain-dependent-pid"
	RuleMaintainPID          = "maintain-pid"
)

func (p *Pipeline) buildRegistry() (*rules.Registry[*Context], error) {
	r := rules.NewRegistry[*Context]()
	entries := []struct {
		stage rules.Stage
		name  string
		fn    rules.Func[*Context]
	}{
		{rules.StagePreNormalize, RuleMaintainAccessRights, p.maintainAccessRights},
		{rules.StagePreNormalize, RuleMaintainDefaultValues, p.maintainDefaultValues},
		{rules.StagePreNormalize, RuleMaintainLanguageTags, p.maintainLanguageTags},
		{rules.StagePreNormalize, RuleMaintainPropertyRange, p.maintainPropertyRange},
		{rules.StagePreNormalize, RuleMaintainWKT, p.maintainWKT},
		{rules.StagePreNormalize, RuleNormalizeIdentifiers, p.normalizeIdentifiers},

		{rules.StageCheck, RuleCheckTitles, p.checkAndDeriveTitles},
		{rules.StageCheck, RuleCheckBibLaTeX, p.checkBibLaTeX},
		{rules.StageCheck, RuleCheckCardinalities, p.checkCardinalities},
		{rules.StageCheck, RuleCheckIdentifierCount, p.checkIdentifierCount},
		{rules.StageCheck, RuleCheckLanguageTags, p.checkLanguageTags},
		{rules.StageCheck, RuleCheckPropertyTypes, p.checkPropertyTypes},
		{rules.StageCheck, RuleCheckUnknownProperties, p.checkUnknownProperties},

		{rules.StagePostNormalize, RuleMaintainDependentPID, p.maintainDependentPID},
		{rules.StagePostNormalize, RuleMaintainPID, p.maintainPID},
	}
	for _, e := range entries {
		if err := r.Register(e.stage, e.name, e.fn); err != nil {
			return nil, err
		}
	}
	return r, nil
}
