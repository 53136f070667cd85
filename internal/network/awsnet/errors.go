package awsnet

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/network"
)

// EC2 error codes that change control flow rather than fail the run.
const (
	codeIncorrectState       = "IncorrectState"
	codeDuplicateAttachment  = "DuplicateTransitGatewayAttachment"
	codeAlreadyAssociated    = "Resource.AlreadyAssociated"
	codeDuplicatePropagation = "TransitGatewayRouteTablePropagation.Duplicate"
	codeRouteAlreadyExists   = "RouteAlreadyExists"
	codeRouteNotFound        = "InvalidRoute.NotFound"
	codeInsufficientSubnets  = "InsufficientSubnetsException"
	codeDuplicateSubnetZone  = "DuplicateSubnetsInSameZone"
)

var notFoundCodes = map[string]bool{
	"InvalidVpcID.NotFound":                      true,
	"InvalidSubnetID.NotFound":                   true,
	"InvalidRouteTableID.NotFound":               true,
	"InvalidTransitGatewayAttachmentID.NotFound": true,
	"InvalidTransitGatewayID.NotFound":           true,
}

func apiErrorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

// classify maps an EC2 API error onto the domain error taxonomy. Errors with
// no special meaning pass through wrapped with the operation name.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch code := apiErrorCode(err); {
	case code == codeIncorrectState:
		return fmt.Errorf("%s: %w", op, domain.ErrResourceBusy)
	case code == codeDuplicateAttachment:
		return fmt.Errorf("%s: %w", op, domain.ErrAttachmentCreationInProgress)
	case code == codeAlreadyAssociated, code == codeDuplicatePropagation, code == codeRouteAlreadyExists:
		return fmt.Errorf("%s: %w", op, domain.ErrAlreadyConfigured)
	case notFoundCodes[code]:
		return fmt.Errorf("%s: %w", op, domain.ErrResourceNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// conflictOf recognizes errors that attachment reconciliation handles as
// structured conflicts instead of failures.
func conflictOf(err error) (network.Conflict, bool) {
	switch apiErrorCode(err) {
	case codeIncorrectState:
		return network.ConflictIncorrectState, true
	case codeInsufficientSubnets:
		return network.ConflictLastSubnet, true
	case codeDuplicateSubnetZone:
		return network.ConflictDuplicateSubnetZone, true
	}
	return network.ConflictNone, false
}
