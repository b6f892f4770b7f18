package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"quizrun-go/server/internal/repository"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Intentos"

var exportHeader = []interface{}{
	"Intento", "Estudiante", "Estado", "Inicio", "Fin",
	"Puntuación", "Preguntas", "Porcentaje", "Aprobado", "Tiempo (s)", "Cierre",
}

// ExportService writes a quiz's attempts as an Excel workbook.
type ExportService struct {
	quizzes  *QuizService
	attempts *repository.AttemptRepository
}

func NewExportService(quizzes *QuizService, attempts *repository.AttemptRepository) *ExportService {
	return &ExportService{quizzes: quizzes, attempts: attempts}
}

// Export writes one row per attempt, oldest first. Result cells stay empty
// for attempts still in progress.
func (s *ExportService) Export(ctx context.Context, quizID string, w io.Writer) error {
	if _, err := s.quizzes.Definition(ctx, quizID); err != nil {
		return err
	}
	attempts, err := s.attempts.ListForQuiz(ctx, quizID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return err
	}

	for i, a := range attempts {
		row := []interface{}{a.ID, a.StudentID, string(a.Status), a.StartedAt.Format(time.RFC3339), "", "", a.Total, "", "", "", string(a.Completion)}
		if a.FinishedAt != nil {
			row[4] = a.FinishedAt.Format(time.RFC3339)
		}
		if a.Score != nil {
			row[5] = *a.Score
			if a.Total > 0 {
				row[7] = float64(*a.Score) / float64(a.Total)
			}
		}
		if a.Passed != nil {
			row[8] = *a.Passed
		}
		if a.ElapsedSeconds != nil {
			row[9] = *a.ElapsedSeconds
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return err
		}
	}

	if len(attempts) > 0 {
		pct, err := f.NewStyle(&excelize.Style{NumFmt: 9}) // 0%
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(exportSheet, "H2", fmt.Sprintf("H%d", len(attempts)+1), pct); err != nil {
			return err
		}
	}

	_, err = f.WriteTo(w)
	return err
}
