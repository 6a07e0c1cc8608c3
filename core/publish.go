package core

import (
	"errors"
	"fmt"

	"github.com/young-rocks/aptos-core/core/gas"
	"github.com/young-rocks/aptos-core/params"
	"github.com/young-rocks/aptos-core/core/types"
	"github.com/young-rocks/aptos-core/core/vm"
)

const maxBytecodeVersion = 7

func (p *TransactionPipeline) deserializerConfig(features params.Features) vm.DeserializerConfig {
	return vm.DeserializerConfig{
		MaxVersion:        maxBytecodeVersion,
		MaxIdentifierSize: features.IdentifierSizeMax(),
	}
}

// publishValidationErr reports an ExecutionFailure for a stage-6 publish
// rule violation (spec.md §4.2 stage 6, rules a-f) — an ExecutionFailure
// rather than a Discard, since it only fires after the payload itself
// already executed successfully.
func publishValidationErr(reason string) error {
	return executionFailureErr("publish validation: " + reason)
}

// validatePublishRequest checks rules (a), (b), and (f) of spec.md §4.2
// stage 6 against the parsed module metadata for every module in the
// bundle. Rules (c)-(e) (framework metadata, resource-group, event
// validators) are the Move framework's own native validators, invoked as
// part of PublishModuleBundleWithCompatConfig itself — this core only
// performs the checks that are about matching the transaction's own
// declared intent (expected_modules / allowed_deps) against the bundle.
func validatePublishRequest(req *vm.PublishRequest, destAddr [32]byte, parsed []vm.ModuleMetadata) error {
	remainingExpected := make(map[string]struct{}, len(req.ExpectedModules))
	for _, name := range req.ExpectedModules {
		remainingExpected[name] = struct{}{}
	}

	for _, mod := range parsed {
		// (a) every module's short name is in expected_modules.
		if _, ok := remainingExpected[mod.ShortName]; !ok {
			return publishValidationErr(fmt.Sprintf("module %q not in expected_modules", mod.ShortName))
		}
		delete(remainingExpected, mod.ShortName)

		// (b) every immediate dependency is either the wildcard "" entry or
		// an explicit name in allowed_deps[dep.address].
		for _, dep := range mod.Deps {
			depAllowed, ok := req.AllowedDeps[dep.Address]
			if !ok {
				return publishValidationErr(fmt.Sprintf("module %q depends on unlisted address %s", mod.ShortName, hexAddr(dep.Address)))
			}
			if _, wildcard := depAllowed[""]; wildcard {
				continue
			}
			if _, ok := depAllowed[dep.Name]; !ok {
				return publishValidationErr(fmt.Sprintf("module %q depends on disallowed %s::%s", mod.ShortName, hexAddr(dep.Address), dep.Name))
			}
		}
	}

	// (f) all of expected_modules have been consumed.
	if len(remainingExpected) != 0 {
		return publishValidationErr("not all expected_modules were present in the bundle")
	}
	return nil
}

func hexAddr(a [32]byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 64)
	for i, b := range a {
		out[2*i] = hexdigits[b>>4]
		out[2*i+1] = hexdigits[b&0xf]
	}
	return string(out)
}

// publishCompatErr wraps a PublishModuleBundleWithCompatConfig failure,
// tagging it as an incompatible-upgrade rejection (spec.md §4.2 stage 6
// "Compatibility checker") unless it is already identifiable as something
// more specific (a MoveAbort inside the publish call, or out-of-gas).
func publishCompatErr(err error, abortInfo func(types.AbortLocation, uint64) *types.AbortInfo) error {
	wrapped := wrapStageErr(err, abortInfo)
	var pe *pipelineError
	if errors.As(wrapped, &pe) && pe.invariant {
		return tagSentinel(wrapped, ErrIncompatibleUpgrade)
	}
	return wrapped
}

// publishBundle runs the shared publish convention behind both stage 5's
// (test-only) ModuleBundle payload and stage 6's pending-publish-request
// resolution: publish with the given compatibility policy, then run
// init_module for every module that was not previously present.
func (p *TransactionPipeline) publishBundle(session vm.Session, bundle [][]byte, destAddr [32]byte, compat vm.Compatibility, meter gas.Meter) error {
	dsCfg := p.deserializerConfig(p.features)

	notPreviouslyPresent := make([]types.ModuleId, 0, len(bundle))
	for _, mod := range bundle {
		meta, err := p.runtime.ParseModuleMetadata(mod, dsCfg)
		if err != nil {
			return publishValidationErr(err.Error())
		}
		moduleID := types.ModuleId{Address: destAddr, Name: meta.ShortName}
		exists, err := session.ExistsModule(moduleID)
		if err != nil {
			return invariantErr(err)
		}
		if !exists {
			notPreviouslyPresent = append(notPreviouslyPresent, moduleID)
		}
	}

	if err := session.PublishModuleBundleWithCompatConfig(bundle, destAddr, compat, meter); err != nil {
		return publishCompatErr(err, p.abortInfo)
	}

	for _, moduleID := range notPreviouslyPresent {
		if _, err := session.ExecuteFunctionBypassVisibility(moduleID, "init_module", nil, [][]byte{encodeAddress(destAddr)}, [][32]byte{destAddr}, meter); err != nil {
			return wrapStageErr(err, p.abortInfo)
		}
	}
	return nil
}

// resolvePendingPublish implements spec.md §4.2 stage 6 in full: drain any
// publish request left in the session's native context, validate it, and
// publish. Returns whether a publish actually happened so the caller can
// track new_published_modules_loaded (spec.md §4.2 stage 6, §9 "Loader-cache
// invalidation").
func (p *TransactionPipeline) resolvePendingPublish(session vm.Session, meter gas.Meter, treatFriendAsPrivate bool) (bool, error) {
	req, ok := session.ExtractPublishRequest()
	if !ok {
		return false, nil
	}

	dsCfg := p.deserializerConfig(p.features)
	parsed := make([]vm.ModuleMetadata, 0, len(req.Bundle))
	for _, mod := range req.Bundle {
		meta, err := p.runtime.ParseModuleMetadata(mod, dsCfg)
		if err != nil {
			return false, publishValidationErr(err.Error())
		}
		parsed = append(parsed, meta)
	}

	if err := validatePublishRequest(req, req.DestinationAddr, parsed); err != nil {
		return false, err
	}

	compat := vm.Compatibility{
		Upgradable:         true,
		CheckStructLayout:  true,
		CheckFriendLinking: !treatFriendAsPrivate,
	}
	if err := p.publishBundle(session, req.Bundle, req.DestinationAddr, compat, meter); err != nil {
		return false, err
	}
	return true, nil
}
