package triage

// MajorConditions lists serious symptom patterns. Order matters: the first
// matching record wins, so emergency patterns sit above general ones only
// where their keywords do not overlap.
var MajorConditions = []ConditionInfo{
	{
		Keywords:     []string{"chest pain", "pain in chest", "heart attack symptom", "angina"},
		Response:     "Chest pain can be a sign of a serious condition and should not be ignored. It's very important to seek immediate medical attention. Would you like assistance finding emergency services or shall I help you book an urgent appointment with one of our specialists?",
		OfferBooking: true,
	},
	{
		Keywords:     []string{"difficulty breathing", "shortness of breath", "can't breathe", "breathing trouble"},
		Response:     "Difficulty breathing is a serious symptom that requires prompt medical evaluation. Please seek medical help urgently. Can I help you book an appointment, or do you need information on emergency services?",
		OfferBooking: true,
	},
	{
		Keywords:     []string{"severe headache", "migraine", "worst headache ever", "sudden severe headache"},
		Response:     "A sudden, severe headache, or a headache that's very different from what you usually experience, needs to be checked by a doctor. This could be serious. Would you like to book an appointment?",
		OfferBooking: true,
	},
	{
		Keywords:     []string{"severe abdominal pain", "intense stomach pain", "stomach cramps severe"},
		Response:     "Severe abdominal pain can have many causes, some of which require urgent medical care. It's best to get this evaluated by a doctor. Can I assist you with booking an appointment?",
		OfferBooking: true,
	},
	{
		Keywords:     []string{"unexplained weight loss", "losing weight rapidly"},
		Response:     "Significant unexplained weight loss should always be investigated by a doctor to understand the cause. Would you like to schedule a consultation?",
		OfferBooking: true,
	},
	{
		Keywords:     []string{"high fever", "fever over 103", "fever 39.5", "persistent fever"},
		Response:     "A high or persistent fever needs medical attention to determine the cause and appropriate treatment. I can help you book an appointment to see a doctor.",
		OfferBooking: true,
	},
	{
		Keywords: []string{"numbness", "weakness on one side", "slurred speech", "stroke symptoms", "facial drooping"},
		Response: "Symptoms like numbness, weakness on one side of the body, or slurred speech could indicate a very serious condition like a stroke and require immediate emergency medical care. Please call emergency services (like 911 or your local equivalent) right away.",
		// Immediate emergency care is better than booking here.
		OfferBooking: false,
	},
	{
		Keywords:     []string{"suicidal thoughts", "want to harm myself", "feeling hopeless and want to die"},
		Response:     "I'm truly sorry to hear you're feeling this way. Please know that you're not alone and help is available. It's important to talk to someone right now. You can reach out to a crisis hotline or mental health professional. For immediate help, please contact a crisis line or emergency services. This is beyond my ability to help with directly, but your well-being is very important.",
		OfferBooking: false,
	},
}

// MinorConditions lists self-care symptom patterns. Minor matches always
// leave booking optional, so OfferBooking is true throughout.
var MinorConditions = []ConditionInfo{
	{
		Keywords:     []string{"cold", "common cold", "runny nose", "sneezing", "slight cough"},
		Response:     "For symptoms like a common cold, getting plenty of rest and staying hydrated often helps. If your symptoms worsen or persist for more than a week, it's a good idea to consult a doctor.",
		OfferBooking: true,
	},
	{
		Keywords:     []string{"sore throat", "scratchy throat"},
		Response:     "A sore throat can be uncomfortable. Warm liquids like tea with honey, or gargling with salt water might provide some relief. If it's severe, lasts long, or you have a fever, please see a doctor.",
		OfferBooking: true,
	},
	{
		Keywords:     []string{"mild headache", "slight headache", "head hurts a bit"},
		Response:     "For a mild headache, resting in a quiet, dark room and ensuring you're hydrated can be beneficial. If headaches are frequent, severe, or accompanied by other symptoms, medical advice is recommended.",
		OfferBooking: true,
	},
	{
		Keywords:     []string{"tired", "fatigued", "bit weary"},
		Response:     "Feeling tired can be due to many reasons. Ensure you're getting enough sleep, managing stress, and maintaining a balanced diet. If fatigue is persistent and affects your daily life, consulting a doctor is advisable.",
		OfferBooking: true,
	},
	{
		Keywords:     []string{"small cut", "minor scrape", "little scratch"},
		Response:     "For minor cuts or scrapes, clean the area gently with soap and water, apply an antiseptic if you have one, and cover it with a sterile bandage. If it's deep, bleeds a lot, or shows signs of infection, please seek medical attention.",
		OfferBooking: true,
	},
}
