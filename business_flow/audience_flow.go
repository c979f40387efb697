package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/postlane/postlane/app/dto"
	"github.com/postlane/postlane/repository"
	"github.com/xuri/excelize/v2"
)

// exportPageSize bounds member reads per storage round-trip during export.
const exportPageSize = 1000

// AudienceFlow provides read use cases over audiences, their members and
// the send history.
type AudienceFlow interface {
	ListAudiences(ctx context.Context, tenantID uint) (*dto.ListAudiencesResponse, error)
	// DownloadAudienceMembersExcel returns a filename and an xlsx workbook of
	// the audience's member records.
	DownloadAudienceMembersExcel(ctx context.Context, tenantID, audienceID uint) (string, []byte, error)
	ListSentEmails(ctx context.Context, tenantID uint, limit, offset int) (*dto.ListSentEmailsResponse, error)
}

type AudienceFlowImpl struct {
	audienceRepo repository.AudienceRepository
	memberRepo   repository.MemberRecordRepository
	sentRepo     repository.SentEmailRepository
}

func NewAudienceFlow(
	audienceRepo repository.AudienceRepository,
	memberRepo repository.MemberRecordRepository,
	sentRepo repository.SentEmailRepository,
) AudienceFlow {
	return &AudienceFlowImpl{
		audienceRepo: audienceRepo,
		memberRepo:   memberRepo,
		sentRepo:     sentRepo,
	}
}

func (f *AudienceFlowImpl) ListAudiences(ctx context.Context, tenantID uint) (*dto.ListAudiencesResponse, error) {
	audiences, err := f.audienceRepo.ListByTenant(ctx, tenantID, 0, 0)
	if err != nil {
		return nil, NewBusinessError("LIST_AUDIENCES_FAILED", "Failed to list audiences", err)
	}
	out := &dto.ListAudiencesResponse{Audiences: make([]dto.AudienceDTO, 0, len(audiences))}
	for _, a := range audiences {
		out.Audiences = append(out.Audiences, ToAudienceDTO(*a))
	}
	return out, nil
}

func (f *AudienceFlowImpl) DownloadAudienceMembersExcel(ctx context.Context, tenantID, audienceID uint) (string, []byte, error) {
	audience, err := f.audienceRepo.ByID(ctx, audienceID)
	if err != nil {
		return "", nil, NewBusinessError("AUDIENCE_LOOKUP_FAILED", "Failed to look up audience", err)
	}
	if audience == nil || audience.TenantID != tenantID {
		return "", nil, NewBusinessError("AUDIENCE_NOT_FOUND", "Audience not found", ErrAudienceNotFound)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := "Members"
	if err := xl.SetSheetName("Sheet1", sheet); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to prepare Excel sheet", err)
	}
	header := []string{"ID", "Email", "First Name", "Last Name", "Full Name", "Source Member ID", "Created At"}
	if err := xl.SetSheetRow(sheet, "A1", &header); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel header", err)
	}

	row := 2
	for offset := 0; ; offset += exportPageSize {
		members, err := f.memberRepo.ListByAudience(ctx, audienceID, exportPageSize, offset)
		if err != nil {
			return "", nil, NewBusinessError("LIST_MEMBERS_FAILED", "Failed to list audience members", err)
		}
		for _, m := range members {
			record := []string{
				strconv.FormatUint(uint64(m.ID), 10),
				m.Email,
				m.FirstName,
				m.LastName,
				m.FullName,
				m.SourceMemberID,
				m.CreatedAt.UTC().Format(time.RFC3339),
			}
			cellRef, _ := excelize.CoordinatesToCellName(1, row)
			if err := xl.SetSheetRow(sheet, cellRef, &record); err != nil {
				return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel row", err)
			}
			row++
		}
		if len(members) < exportPageSize {
			break
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	filename := fmt.Sprintf("audience_%d_members.xlsx", audienceID)
	return filename, buf.Bytes(), nil
}

func (f *AudienceFlowImpl) ListSentEmails(ctx context.Context, tenantID uint, limit, offset int) (*dto.ListSentEmailsResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := f.sentRepo.ListByTenant(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, NewBusinessError("LIST_SENT_EMAILS_FAILED", "Failed to list sent emails", err)
	}
	out := &dto.ListSentEmailsResponse{SentEmails: make([]dto.SentEmailDTO, 0, len(rows))}
	for _, r := range rows {
		out.SentEmails = append(out.SentEmails, dto.SentEmailDTO{
			ID:             r.ID,
			JobID:          r.JobID,
			BroadcastID:    r.BroadcastID,
			RecipientCount: r.RecipientCount,
			SentAt:         r.SentAt.Format(time.RFC3339),
		})
	}
	return out, nil
}
