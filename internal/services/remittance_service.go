package services

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/avelio/backend/internal/models"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/spf13/viper"
)

// RemittanceService renders a paid bank-transfer receipt as an ISO 20022
// pacs.008 remittance advice for reconciliation with the agency's bank.
type RemittanceService struct{}

func NewRemittanceService() *RemittanceService {
	return &RemittanceService{}
}

// BuildPacs008 creates a pacs.008 FIToFICustomerCreditTransfer message for
// a receipt. Only PAID receipts settled by bank transfer carry enough
// information to produce an advice.
func (rm *RemittanceService) BuildPacs008(receipt *models.Receipt) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if receipt.Status != models.ReceiptStatusPaid {
		return nil, ConflictErr("Only paid receipts can be exported as remittance advice")
	}
	if receipt.PaymentMethod != models.PaymentMethodBankTransfer {
		return nil, ConflictErr("Only bank-transfer receipts can be exported as remittance advice")
	}
	if receipt.Agency == nil {
		return nil, ValidationErr("Receipt is missing its agency details")
	}

	msgId := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := creDtTm
	if receipt.PaymentDate != nil {
		settlementDate = *receipt.PaymentDate
	}
	amount := receipt.Amount.InexactFloat64()

	creditorName := viper.GetString("remittance.creditor_name")
	if creditorName == "" {
		creditorName = "Avelio Airways Finance"
	}
	creditorBIC := viper.GetString("remittance.creditor_bic")
	if creditorBIC == "" {
		creditorBIC = "AVELIOJB"
	}

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(receipt.Currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(receipt.ID)}[0],
					EndToEndId: common.Max35Text(receipt.ReceiptNumber),
					TxId:       &[]common.Max35Text{common.Max35Text(receipt.ID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(receipt.Currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(receipt.Agency.AgencyID),
						},
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(receipt.Agency.AgencyName)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(creditorBIC)}[0],
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(creditorName)}[0],
				},
			},
		},
	}

	return doc, nil
}

// ToXML marshals a pacs document to indented XML with the standard header.
func (rm *RemittanceService) ToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
