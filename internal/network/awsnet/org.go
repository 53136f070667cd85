package awsnet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
)

// AccountName implements network.OrgAPI. Accounts outside the organization,
// or a missing management role, degrade to an empty name so labeling can
// fall back to the account id.
func (c *Client) AccountName(ctx context.Context, accountID string) (string, error) {
	if c.org == nil {
		return "", nil
	}
	out, err := c.org.DescribeAccount(ctx, &organizations.DescribeAccountInput{
		AccountId: aws.String(accountID),
	})
	if err != nil {
		if isOrgLookupDenied(err) {
			return "", nil
		}
		return "", fmt.Errorf("describe account %s: %w", accountID, err)
	}
	return aws.ToString(out.Account.Name), nil
}

// AccountOUPath implements network.OrgAPI. The path is assembled by walking
// ListParents from the account up to the organization root, then reversing,
// and always ends with "/": an account directly under the root yields
// "Root/".
func (c *Client) AccountOUPath(ctx context.Context, accountID string) (string, error) {
	if c.org == nil {
		return "", nil
	}
	var names []string
	childID := accountID
	for {
		out, err := c.org.ListParents(ctx, &organizations.ListParentsInput{
			ChildId: aws.String(childID),
		})
		if err != nil {
			if isOrgLookupDenied(err) {
				return "", nil
			}
			return "", fmt.Errorf("list parents of %s: %w", childID, err)
		}
		if len(out.Parents) == 0 {
			break
		}
		parent := out.Parents[0]
		if parent.Type == orgtypes.ParentTypeRoot {
			names = append(names, "Root")
			break
		}
		name, err := c.ouName(ctx, aws.ToString(parent.Id))
		if err != nil {
			return "", err
		}
		names = append(names, name)
		childID = aws.ToString(parent.Id)
	}
	if len(names) == 0 {
		return "", nil
	}
	var sb strings.Builder
	for i := len(names) - 1; i >= 0; i-- {
		sb.WriteString(names[i])
		sb.WriteString("/")
	}
	return sb.String(), nil
}

func (c *Client) ouName(ctx context.Context, ouID string) (string, error) {
	out, err := c.org.DescribeOrganizationalUnit(ctx, &organizations.DescribeOrganizationalUnitInput{
		OrganizationalUnitId: aws.String(ouID),
	})
	if err != nil {
		return "", fmt.Errorf("describe organizational unit %s: %w", ouID, err)
	}
	return aws.ToString(out.OrganizationalUnit.Name), nil
}

func isOrgLookupDenied(err error) bool {
	var denied *orgtypes.AccessDeniedException
	var notInOrg *orgtypes.AccountNotFoundException
	var notOrg *orgtypes.AWSOrganizationsNotInUseException
	return errors.As(err, &denied) || errors.As(err, &notInOrg) || errors.As(err, &notOrg)
}
