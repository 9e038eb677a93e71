package access

// Scope restricts which rows an actor may see. A zero Scope sees everything.
type Scope struct {
	DoctorID        string
	PatientRecordID string
	// None is set when the actor can see no rows at all, such as a patient
	// without a linked record.
	None bool
}

// Unrestricted reports whether the scope applies no filter.
func (s Scope) Unrestricted() bool {
	return !s.None && s.DoctorID == "" && s.PatientRecordID == ""
}

// Permits applies the scope to a single row.
func (s Scope) Permits(doctorID, patientRecordID string) bool {
	if s.None {
		return false
	}
	if s.DoctorID != "" && s.DoctorID != doctorID {
		return false
	}
	if s.PatientRecordID != "" && s.PatientRecordID != patientRecordID {
		return false
	}
	return true
}

// AppointmentScope returns the rows of appointments visible to actor.
// patientRecordID is the actor's linked record and only matters for patients;
// empty means no record is linked.
func AppointmentScope(actor Actor, patientRecordID string) Scope {
	switch actor.Role {
	case RoleDoctor:
		return Scope{DoctorID: actor.ID}
	case RolePatient:
		if patientRecordID == "" {
			return Scope{None: true}
		}
		return Scope{PatientRecordID: patientRecordID}
	case RoleAdmin, RoleReceptionist:
		return Scope{}
	default:
		return Scope{None: true}
	}
}

// PrescriptionScope returns the prescriptions visible to actor. Doctors see
// what they authored, patients see their own, admins see all.
func PrescriptionScope(actor Actor, patientRecordID string) Scope {
	switch actor.Role {
	case RoleDoctor:
		return Scope{DoctorID: actor.ID}
	case RolePatient:
		if patientRecordID == "" {
			return Scope{None: true}
		}
		return Scope{PatientRecordID: patientRecordID}
	case RoleAdmin:
		return Scope{}
	default:
		return Scope{None: true}
	}
}
