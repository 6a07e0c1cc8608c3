package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/young-rocks/aptos-core/core/types"
	"github.com/young-rocks/aptos-core/core/vm"
)

func TestValidatePublishRequest_AllRulesSatisfied(t *testing.T) {
	destAddr := [32]byte{1}
	depAddr := [32]byte{2}
	req := &vm.PublishRequest{
		ExpectedModules: []string{"coin"},
		AllowedDeps:     map[[32]byte]map[string]struct{}{depAddr: {"account": {}}},
	}
	parsed := []vm.ModuleMetadata{
		{ShortName: "coin", Deps: []types.ModuleId{{Address: depAddr, Name: "account"}}},
	}

	assert.NoError(t, validatePublishRequest(req, destAddr, parsed))
}

func TestValidatePublishRequest_WildcardDepAllowed(t *testing.T) {
	destAddr := [32]byte{1}
	depAddr := [32]byte{2}
	req := &vm.PublishRequest{
		ExpectedModules: []string{"coin"},
		AllowedDeps:     map[[32]byte]map[string]struct{}{depAddr: {"": {}}},
	}
	parsed := []vm.ModuleMetadata{
		{ShortName: "coin", Deps: []types.ModuleId{{Address: depAddr, Name: "anything"}}},
	}

	assert.NoError(t, validatePublishRequest(req, destAddr, parsed))
}

func TestValidatePublishRequest_ModuleNotInExpectedModules(t *testing.T) {
	req := &vm.PublishRequest{ExpectedModules: []string{"other"}}
	parsed := []vm.ModuleMetadata{{ShortName: "coin"}}

	err := validatePublishRequest(req, [32]byte{1}, parsed)
	assert.Error(t, err)
}

func TestValidatePublishRequest_DependencyOnUnlistedAddress(t *testing.T) {
	req := &vm.PublishRequest{ExpectedModules: []string{"coin"}, AllowedDeps: map[[32]byte]map[string]struct{}{}}
	parsed := []vm.ModuleMetadata{
		{ShortName: "coin", Deps: []types.ModuleId{{Address: [32]byte{9}, Name: "account"}}},
	}

	err := validatePublishRequest(req, [32]byte{1}, parsed)
	assert.Error(t, err)
}

func TestValidatePublishRequest_DependencyOnDisallowedName(t *testing.T) {
	depAddr := [32]byte{2}
	req := &vm.PublishRequest{
		ExpectedModules: []string{"coin"},
		AllowedDeps:     map[[32]byte]map[string]struct{}{depAddr: {"account": {}}},
	}
	parsed := []vm.ModuleMetadata{
		{ShortName: "coin", Deps: []types.ModuleId{{Address: depAddr, Name: "governance"}}},
	}

	err := validatePublishRequest(req, [32]byte{1}, parsed)
	assert.Error(t, err)
}

func TestValidatePublishRequest_NotAllExpectedModulesPresent(t *testing.T) {
	req := &vm.PublishRequest{ExpectedModules: []string{"coin", "account"}}
	parsed := []vm.ModuleMetadata{{ShortName: "coin"}}

	err := validatePublishRequest(req, [32]byte{1}, parsed)
	assert.Error(t, err)
}
