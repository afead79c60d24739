package student

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

type StudentRepo interface {
	// List returns one page of active students ordered by name, plus the
	// number of students matching search across all pages.
	List(ctx context.Context, limit, offset int, search string) ([]Student, int, error)
	GetByID(ctx context.Context, id string) (*Student, error)
	ListAll(ctx context.Context) ([]Student, error)
}

const (
	studentColumns = `id::text, name, email, date_of_birth, grade, parent_name, parent_phone, address, emergency_contact, created_at`

	listStudentsQuery   = `SELECT ` + studentColumns + `, total_count FROM sp_get_all_students($1, $2, $3)`
	getStudentByIDQuery = `SELECT ` + studentColumns + ` FROM sp_get_student_by_id($1::uuid)`
	exportStudentsQuery = `SELECT ` + studentColumns + ` FROM sp_export_students()`
)

type studentRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewStudentRepo(db *sql.DB, logger *zap.Logger) StudentRepo {
	return &studentRepo{db: db, logger: logger}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner, extra ...any) (Student, error) {
	var (
		s                Student
		address, contact sql.NullString
	)
	dest := append([]any{
		&s.ID,
		&s.Name,
		&s.Email,
		&s.DateOfBirth.Time,
		&s.Grade,
		&s.ParentName,
		&s.ParentPhone,
		&address,
		&contact,
		&s.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Student{}, err
	}
	s.Address = address.String
	s.EmergencyContact = contact.String
	return s, nil
}

func (r *studentRepo) List(ctx context.Context, limit, offset int, search string) ([]Student, int, error) {
	rows, err := r.db.QueryContext(ctx, listStudentsQuery, limit, offset, search)
	if err != nil {
		r.logger.Error("failed to list students", zap.Error(err))
		return nil, 0, err
	}
	defer rows.Close()

	students := make([]Student, 0, limit)
	var total int64
	for rows.Next() {
		s, err := scanStudent(rows, &total)
		if err != nil {
			r.logger.Error("failed to scan student", zap.Error(err))
			return nil, 0, err
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("failed to iterate students", zap.Error(err))
		return nil, 0, err
	}
	return students, int(total), nil
}

func (r *studentRepo) GetByID(ctx context.Context, id string) (*Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, getStudentByIDQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation {
			return nil, ErrNotFound
		}
		r.logger.Error("failed to load student", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return &s, nil
}

func (r *studentRepo) ListAll(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, exportStudentsQuery)
	if err != nil {
		r.logger.Error("failed to export students", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			r.logger.Error("failed to scan student", zap.Error(err))
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}
